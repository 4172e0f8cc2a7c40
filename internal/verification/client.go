// Package verification is the client of the external verification service.
//
// A batch of verification ids is submitted in one request and results are
// streamed back as server-sent events. Results that are still pending carry
// a check token that is polled until it settles or the attempt bound is
// reached. The client owns one session token, refreshed once on an auth
// failure.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL string
	APIKey  string

	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxPollAttempts int
	// PollConcurrency bounds check-token polls running for one submission.
	PollConcurrency int
}

type Client struct {
	cfg    Config
	http   *http.Client
	quota  QuotaStore
	log    logging.Logger
	tokens *tokenManager
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client, quota QuotaStore, log logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.MaxPollAttempts < 1 {
		cfg.MaxPollAttempts = 1
	}
	if cfg.PollConcurrency < 1 {
		cfg.PollConcurrency = 8
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:   cfg,
		http:  httpClient,
		quota: quota,
		log:   log,
		sleep: sleepCtx,
		now:   time.Now,
	}
	c.tokens = newTokenManager(c.fetchToken)
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type batchRequest struct {
	IDs   []string `json:"ids"`
	Token string   `json:"token"`
}

type checkRequest struct {
	CheckToken string `json:"check_token"`
}

type checkResponse struct {
	CurrentStep string `json:"current_step"`
	Message     string `json:"message"`
	CheckToken  string `json:"check_token,omitempty"`
}

type cancelRequest struct {
	ID string `json:"id"`
}

type statusResponse struct {
	RemainingQuota int `json:"remaining_quota"`
	Used           int `json:"used"`
	Capacity       int `json:"capacity"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.APIKeyHeaderName, c.cfg.APIKey)
	return req, nil
}

// doJSON sends a request and decodes a 200 JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, common.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, common.ErrAuthExpired)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s %s: %w: status %d", method, path, common.ErrTransport, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/session", nil, &resp); err != nil {
		return "", fmt.Errorf("refresh session token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("refresh session token: empty token: %w", common.ErrAuthExpired)
	}
	return resp.Token, nil
}

// SubmitBatch submits ids and returns one job per id.
//
// Transport failures never fail the call: ids without a result get an
// error job. An auth failure triggers one token refresh and one full
// resubmission; a second auth failure is returned as common.ErrAuthExpired.
func (c *Client) SubmitBatch(ctx context.Context, ids []string) (map[string]models.VerificationJob, error) {
	if len(ids) == 0 {
		return map[string]models.VerificationJob{}, nil
	}

	token, err := c.tokens.Current(ctx)
	if err != nil {
		return nil, err
	}

	results, err := c.submitOnce(ctx, ids, token)
	if errors.Is(err, common.ErrAuthExpired) {
		c.log.Warn(ctx, "verification session expired, refreshing", "ids", len(ids))
		token, err = c.tokens.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		results, err = c.submitOnce(ctx, ids, token)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) submitOnce(ctx context.Context, ids []string, token string) (map[string]models.VerificationJob, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]models.VerificationJob, len(ids))
	)
	set := func(job models.VerificationJob) {
		mu.Lock()
		results[job.VerificationID] = job
		mu.Unlock()
	}
	failRest := func(msg string) map[string]models.VerificationJob {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range ids {
			if _, ok := results[id]; !ok {
				results[id] = models.VerificationJob{VerificationID: id, Status: models.JobError, Message: msg}
			}
		}
		return results
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/batch", batchRequest{IDs: ids, Token: token})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error(ctx, "batch submission failed", "error", err)
		return failRest(fmt.Sprintf("%s: %v", common.ErrTransport, err)), nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("submit batch: status %d: %w", resp.StatusCode, common.ErrAuthExpired)
	case resp.StatusCode != http.StatusOK:
		return failRest(fmt.Sprintf("%s: status %d", common.ErrTransport, resp.StatusCode)), nil
	}

	polls, pollCtx := errgroup.WithContext(ctx)
	polls.SetLimit(c.cfg.PollConcurrency)
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	streamErr := readEvents(resp.Body, func(ev Event) bool {
		switch ev.Name {
		case "start":
			var s startEvent
			if err := json.Unmarshal([]byte(ev.Data), &s); err != nil {
				c.log.Warn(ctx, "bad start event", "error", err)
				return true
			}
			c.saveQuota(ctx, models.Quota{Total: s.Total, RemainingQuota: s.RemainingQuota, Cost: s.Cost, UpdatedAt: c.now()})
		case "result":
			var r resultEvent
			if err := json.Unmarshal([]byte(ev.Data), &r); err != nil {
				c.log.Warn(ctx, "bad result event", "error", err)
				return true
			}
			if _, ok := wanted[r.ID]; !ok {
				c.log.Warn(ctx, "result for unknown id", "id", r.ID)
				return true
			}
			job := jobFromStep(r.ID, r.CurrentStep, r.Message, r.CheckToken)
			if job.Status == models.JobPending && job.CheckToken != "" {
				polls.Go(func() error {
					polled := c.PollStatus(pollCtx, job.CheckToken)
					polled.VerificationID = job.VerificationID
					set(polled)
					return nil
				})
				return true
			}
			if job.Status == models.JobPending {
				job.Status, job.Message = models.JobError, "pending result without check token"
			}
			set(job)
		case "end":
			var e endEvent
			_ = json.Unmarshal([]byte(ev.Data), &e)
			c.log.Debug(ctx, "batch stream ended", "completed", e.Completed, "total", e.Total)
			return false
		}
		return true
	})
	_ = polls.Wait()

	if streamErr != nil {
		c.log.Error(ctx, "batch stream interrupted", "error", streamErr)
		return failRest(fmt.Sprintf("%s: %v", common.ErrTransport, streamErr)), nil
	}
	return failRest("no result received"), nil
}

func jobFromStep(id, step, message, checkToken string) models.VerificationJob {
	job := models.VerificationJob{VerificationID: id, CheckToken: checkToken, Message: message}
	switch strings.ToLower(step) {
	case "success":
		job.Status = models.JobSuccess
	case "error":
		job.Status = models.JobError
		if job.Message == "" {
			job.Message = common.ErrVerificationRejected.Error()
		}
	default:
		job.Status = models.JobPending
	}
	return job
}

func (c *Client) saveQuota(ctx context.Context, q models.Quota) {
	if c.quota == nil {
		return
	}
	if err := c.quota.SaveQuota(ctx, q); err != nil {
		c.log.Warn(ctx, "failed to save quota", "error", err)
	}
}

// PollStatus follows checkToken until the job settles. Each attempt,
// failed or not, counts against MaxPollAttempts, and rotated tokens are
// followed. Reaching the bound yields an error job "poll timeout".
func (c *Client) PollStatus(ctx context.Context, checkToken string) models.VerificationJob {
	token := checkToken
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
				return stoppedJob(token, err)
			}
		}

		resp, err := c.checkOnce(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return stoppedJob(token, ctx.Err())
			}
			c.log.Warn(ctx, "check-status attempt failed", "attempt", attempt, "error", err)
			continue
		}

		job := jobFromStep("", resp.CurrentStep, resp.Message, resp.CheckToken)
		if job.Status != models.JobPending {
			if job.CheckToken == "" {
				job.CheckToken = token
			}
			return job
		}
		if resp.CheckToken != "" && resp.CheckToken != token {
			c.log.Debug(ctx, "check token rotated", "attempt", attempt)
			token = resp.CheckToken
		}
	}
	return models.VerificationJob{CheckToken: token, Status: models.JobError, Message: common.ErrPollTimeout.Error()}
}

// stoppedJob is the result of a poll cut short by its context. Running out
// of time is reported as a poll timeout; a cancel keeps its own message.
func stoppedJob(token string, err error) models.VerificationJob {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = common.ErrPollTimeout.Error()
	}
	return models.VerificationJob{CheckToken: token, Status: models.JobError, Message: msg}
}

func (c *Client) checkOnce(ctx context.Context, token string) (*checkResponse, error) {
	if c.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PollTimeout)
		defer cancel()
	}
	var resp checkResponse
	if err := c.doJSON(ctx, http.MethodPost, "/check-status", checkRequest{CheckToken: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel asks the service to drop a verification. Failures are logged and
// returned; callers are free to ignore them.
func (c *Client) Cancel(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/cancel", cancelRequest{ID: id}, nil); err != nil {
		c.log.Warn(ctx, "cancel failed", "id", id, "error", err)
		return err
	}
	return nil
}

// Status fetches the live quota and stores it as the latest snapshot.
func (c *Client) Status(ctx context.Context) (models.Quota, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return models.Quota{}, err
	}

	q := models.Quota{
		RemainingQuota: resp.RemainingQuota,
		Used:           resp.Used,
		Capacity:       resp.Capacity,
		UpdatedAt:      c.now(),
	}
	if c.quota != nil {
		if prev, err := c.quota.LoadQuota(ctx); err == nil && prev != nil {
			q.Total, q.Cost = prev.Total, prev.Cost
		}
	}
	c.saveQuota(ctx, q)
	return q, nil
}
