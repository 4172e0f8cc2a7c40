package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreSeams(t *testing.T) {
	t.Helper()
	origLoad, origNew, origPut := loadDefaultAWSConfig, newS3ClientFromConfig, putObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, putObject = origLoad, origNew, origPut
	})
}

func snapshot() batch.Snapshot {
	fin := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	return batch.Snapshot{
		TaskID: "task-1", State: batch.StateCompleted, Concurrency: 2,
		Total: 2, Processed: 2, Stats: map[string]int{"SUBSCRIBED": 1, "ERROR": 1},
		Results: []batch.Result{
			{AccountID: "a@example.com", Status: "SUBSCRIBED", Message: "subscribed", Time: fin},
			{AccountID: "b@example.com", Status: "ERROR", Message: "card declined", Time: fin},
		},
		Logs:       []batch.LogEntry{{Time: fin, Message: "batch started"}},
		StartedAt:  fin.Add(-time.Hour),
		FinishedAt: fin,
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "reports/2026/06/01/task-1.json", ObjectKey("task-1", time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)))
}

func TestS3Reporter_Uploads(t *testing.T) {
	restoreSeams(t)

	var gotRegion string
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		gotRegion = lo.Region
		return aws.Config{Region: lo.Region, Credentials: lo.Credentials}, nil
	}

	var gotOpts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&gotOpts)
		}
		return &s3.Client{}
	}

	var in *s3.PutObjectInput
	var body []byte
	putObject = func(_ *s3.Client, _ context.Context, i *s3.PutObjectInput) error {
		in = i
		var err error
		body, err = io.ReadAll(i.Body)
		return err
	}

	r := NewS3Reporter(S3Config{Bucket: "reports", Region: "eu-west-1", BaseEndpoint: "http://127.0.0.1:9000"}, logging.NewNop())
	require.NoError(t, r.Report(context.Background(), snapshot()))

	assert.Equal(t, "eu-west-1", gotRegion)
	require.NotNil(t, gotOpts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *gotOpts.BaseEndpoint)
	assert.True(t, gotOpts.UsePathStyle)

	require.NotNil(t, in)
	assert.Equal(t, "reports", aws.ToString(in.Bucket))
	assert.Equal(t, "reports/2026/06/01/task-1.json", aws.ToString(in.Key))

	var rep Report
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.Equal(t, "completed", rep.State)
	assert.Equal(t, 1, rep.Stats["ERROR"])
	require.Len(t, rep.Results, 2)
	assert.Equal(t, "card declined", rep.Results[1].Message)
}

func TestS3Reporter_Errors(t *testing.T) {
	restoreSeams(t)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}
	r := NewS3Reporter(S3Config{Bucket: "reports"}, logging.NewNop())
	require.ErrorContains(t, r.Report(context.Background(), snapshot()), "s3 config")

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(aws.Config, ...func(*s3.Options)) *s3.Client { return &s3.Client{} }
	putObject = func(*s3.Client, context.Context, *s3.PutObjectInput) error { return errors.New("access denied") }
	require.ErrorContains(t, r.Report(context.Background(), snapshot()), "upload report reports/2026/06/01/task-1.json: access denied")
}
