// Package reports uploads the final snapshot of every batch to an
// S3-compatible bucket as a JSON document.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}
)

type S3Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// S3Reporter implements batch.Reporter.
type S3Reporter struct {
	cfg S3Config
	log logging.Logger
}

func NewS3Reporter(cfg S3Config, log logging.Logger) *S3Reporter {
	return &S3Reporter{cfg: cfg, log: log}
}

type reportEntry struct {
	Time      time.Time `json:"time"`
	AccountID string    `json:"account_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message"`
}

// Report is the uploaded document.
type Report struct {
	TaskID      string         `json:"task_id"`
	State       string         `json:"state"`
	Concurrency int            `json:"concurrency"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Pending     int            `json:"pending"`
	Stats       map[string]int `json:"stats"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Results     []reportEntry  `json:"results"`
	Logs        []reportEntry  `json:"logs"`
}

func NewReport(s batch.Snapshot) Report {
	r := Report{
		TaskID:      s.TaskID,
		State:       string(s.State),
		Concurrency: s.Concurrency,
		Total:       s.Total,
		Processed:   s.Processed,
		Pending:     s.Pending,
		Stats:       s.Stats,
		Error:       s.Err,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Results:     make([]reportEntry, 0, len(s.Results)),
		Logs:        make([]reportEntry, 0, len(s.Logs)),
	}
	for _, res := range s.Results {
		r.Results = append(r.Results, reportEntry{Time: res.Time, AccountID: res.AccountID, Status: res.Status, Message: res.Message})
	}
	for _, l := range s.Logs {
		r.Logs = append(r.Logs, reportEntry{Time: l.Time, AccountID: l.AccountID, Message: l.Message})
	}
	return r
}

// ObjectKey is where the report of a task finished at t is stored.
func ObjectKey(taskID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("reports/%d/%02d/%02d/%s.json", t.Year(), t.Month(), t.Day(), taskID)
}

func (r *S3Reporter) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(r.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			r.cfg.AccessKey,
			r.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if r.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(r.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (r *S3Reporter) Report(ctx context.Context, s batch.Snapshot) error {
	body, err := json.MarshalIndent(NewReport(s), "", "  ")
	if err != nil {
		return err
	}

	c, err := r.client(ctx)
	if err != nil {
		return fmt.Errorf("s3 config: %w", err)
	}

	key := ObjectKey(s.TaskID, s.FinishedAt)
	err = putObject(c, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload report %s: %w", key, err)
	}

	r.log.Info(ctx, "batch report uploaded", "task", s.TaskID, "bucket", r.cfg.Bucket, "key", key)
	return nil
}
