package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/control"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	addr      string
	started   []control.StartRequest
	resumed   []control.StartRequest
	stopped   []string
	snaps     []batch.Snapshot
	statusErr error
	quota     control.QuotaReport
	closed    bool
}

func (f *fakeClient) StartBatch(_ context.Context, req control.StartRequest) (string, error) {
	f.started = append(f.started, req)
	return "task-1", nil
}

func (f *fakeClient) ResumeBatch(_ context.Context, req control.StartRequest) (string, error) {
	f.resumed = append(f.resumed, req)
	return "task-2", nil
}

func (f *fakeClient) StopBatch(_ context.Context, id string) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeClient) ForgetBatch(context.Context, string) error {
	return common.ErrTaskRunning
}

func (f *fakeClient) BatchStatus(context.Context, string) (batch.Snapshot, error) {
	if f.statusErr != nil {
		return batch.Snapshot{}, f.statusErr
	}
	s := f.snaps[0]
	if len(f.snaps) > 1 {
		f.snaps = f.snaps[1:]
	}
	return s, nil
}

func (f *fakeClient) Quota(context.Context) (control.QuotaReport, error) {
	return f.quota, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func withFakeClient(t *testing.T) *fakeClient {
	t.Helper()
	color.NoColor = true
	f := &fakeClient{}
	orig := dial
	dial = func(addr string) (ControlClient, error) {
		f.addr = addr
		return f, nil
	}
	t.Cleanup(func() { dial = orig })
	return f
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestStartAndResume(t *testing.T) {
	f := withFakeClient(t)

	out, _, err := run(t, "", "start", "-a", "10.0.0.1:5000", "-n", "2", "a@example.com", "b@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Started task task-1")
	assert.Equal(t, "10.0.0.1:5000", f.addr)
	require.Len(t, f.started, 1)
	assert.Equal(t, control.StartRequest{IDs: []string{"a@example.com", "b@example.com"}, Concurrency: 2}, f.started[0])
	assert.True(t, f.closed)

	_, _, err = run(t, "", "resume", "--all")
	require.NoError(t, err)
	require.Len(t, f.resumed, 1)
	assert.True(t, f.resumed[0].All)

	_, _, err = run(t, "", "start")
	require.Error(t, err)
	assert.Len(t, f.started, 1)
}

func TestStopAndForget(t *testing.T) {
	f := withFakeClient(t)

	out, _, err := run(t, "", "stop", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop requested")
	assert.Equal(t, []string{"task-1"}, f.stopped)

	_, _, err = run(t, "", "forget", "task-1")
	require.ErrorIs(t, err, common.ErrTaskRunning)

	_, _, err = run(t, "", "stop")
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := withFakeClient(t)
	now := time.Now()
	f.snaps = []batch.Snapshot{{
		TaskID: "task-1", State: batch.StateCompleted, Total: 2, Processed: 2, Concurrency: 1,
		Stats:     map[string]int{"SUBSCRIBED": 1, "ERROR": 1},
		Results:   []batch.Result{{Time: now, AccountID: "a@example.com", Status: "ERROR", Message: "card declined"}},
		Logs:      []batch.LogEntry{{Time: now, Message: "batch started"}, {Time: now, AccountID: "a@example.com", Message: "ERROR: card declined"}},
		StartedAt: now, FinishedAt: now,
	}}

	out, _, err := run(t, "", "status", "task-1", "--logs", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "task-1 [completed]")
	assert.Contains(t, out, "2/2 processed, 0 pending")
	assert.Contains(t, out, "card declined")
	assert.Contains(t, out, "[a@example.com] ERROR: card declined")
	assert.NotContains(t, out, "batch started")

	f.statusErr = common.ErrTaskNotFound
	_, _, err = run(t, "", "status", "nope")
	require.ErrorIs(t, err, common.ErrTaskNotFound)
}

func TestStatus_WatchUntilFinished(t *testing.T) {
	f := withFakeClient(t)
	f.snaps = []batch.Snapshot{
		{TaskID: "task-1", State: batch.StateRunning, Total: 2},
		{TaskID: "task-1", State: batch.StateRunning, Total: 2, Processed: 1},
		{TaskID: "task-1", State: batch.StateStopped, Total: 2, Processed: 1, Pending: 1},
		{TaskID: "task-1", State: batch.StateRunning},
	}

	out, _, err := run(t, "", "status", "task-1", "-w", "1ms")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "Task:"))
	assert.Contains(t, out, "[stopped]")
}

func TestQuota(t *testing.T) {
	f := withFakeClient(t)
	f.quota = control.QuotaReport{
		Quota: models.Quota{RemainingQuota: 7, Total: 3, Cost: 3},
		Error: "GET /status: transport error",
	}

	out, _, err := run(t, "", "quota")
	require.NoError(t, err)
	assert.Contains(t, out, "Quota (stored)")
	assert.Contains(t, out, "remaining:  7")
	assert.Contains(t, out, "transport error")
}

func TestImportAndList(t *testing.T) {
	color.NoColor = true
	dsn := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("GOPHENROLL_MASTER_PASSWORD", "secret")

	accounts := strings.Join([]string{
		"a@example.com----pw1",
		"not-an-email----pw",
		"b@example.com----pw2----backup@example.com----JBSW Y3DP",
	}, "\n")
	out, errOut, err := run(t, accounts, "import-accounts", "--dsn", dsn, "--owner", "team", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 accounts")
	assert.Contains(t, errOut, "skipped:")
	assert.Contains(t, errOut, "line 2")

	cards := "4111-1111-1111-1111 12 2030 123 | Jane Doe\n"
	out, _, err = run(t, cards, "import-cards", "--dsn", dsn, "--owner", "team", "--max-uses", "2", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 cards into private:team pool")

	out, _, err = run(t, "", "accounts", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "a@example.com")
	assert.Contains(t, out, "private:team")

	out, _, err = run(t, "", "instruments", "--dsn", dsn, "--owner", "team")
	require.NoError(t, err)
	assert.Contains(t, out, "*1111")
	assert.Contains(t, out, "0/2")
	assert.Contains(t, out, "2031-01")

	out, _, err = run(t, "", "instruments", "--dsn", dsn, "--owner", "")
	require.NoError(t, err)
	assert.NotContains(t, out, "*1111")
}

func TestImport_NothingValid(t *testing.T) {
	t.Setenv("GOPHENROLL_MASTER_PASSWORD", "secret")
	dsn := filepath.Join(t.TempDir(), "cli.db")

	_, errOut, err := run(t, "garbage\n", "import-cards", "--dsn", dsn, "-")
	require.Error(t, err)
	assert.Contains(t, errOut, "skipped:")
}
