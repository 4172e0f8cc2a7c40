package orchestrator

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/pool"
	"github.com/dmitrijs2005/gophenroll/internal/session"
)

// fakeDriver replays detections in order and repeats the last one.
type fakeDriver struct {
	mu sync.Mutex

	detections []session.Detection
	detectErr  error
	detects    int

	loginErr error
	logins   int

	link    string
	linkErr error

	payment    session.PaymentResult
	paymentErr error
	payments   int
	// onPayment runs inside AttemptPaymentBinding when set.
	onPayment func(ctx context.Context)
}

func detected(s session.DetectedStatus) session.Detection {
	return session.Detection{Authenticated: true, Status: s}
}

func (d *fakeDriver) DetectStatus(context.Context, *models.Account) (session.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detectErr != nil {
		return session.Detection{}, d.detectErr
	}
	i := min(d.detects, len(d.detections)-1)
	d.detects++
	return d.detections[i], nil
}

func (d *fakeDriver) Login(context.Context, *models.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logins++
	return d.loginErr
}

func (d *fakeDriver) ExtractVerificationLink(context.Context, *models.Account) (string, error) {
	return d.link, d.linkErr
}

func (d *fakeDriver) AttemptPaymentBinding(ctx context.Context, _ *models.Account, _ *models.Card) (session.PaymentResult, error) {
	d.mu.Lock()
	d.payments++
	d.mu.Unlock()
	if d.onPayment != nil {
		d.onPayment(ctx)
	}
	return d.payment, d.paymentErr
}

type fakeVerifier struct {
	jobs  map[string]models.VerificationJob
	err   error
	calls int
	ids   []string
	// block makes SubmitBatch wait for its context and report the
	// context error per id.
	block     bool
	cancels   []string
	cancelErr error
}

func (v *fakeVerifier) SubmitBatch(ctx context.Context, ids []string) (map[string]models.VerificationJob, error) {
	v.calls++
	v.ids = append(v.ids, ids...)
	if v.block {
		<-ctx.Done()
		out := make(map[string]models.VerificationJob, len(ids))
		for _, id := range ids {
			out[id] = models.VerificationJob{VerificationID: id, Status: models.JobError, Message: ctx.Err().Error()}
		}
		return out, nil
	}
	return v.jobs, v.err
}

func (v *fakeVerifier) Cancel(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	v.cancels = append(v.cancels, id)
	return v.cancelErr
}

type fakeAllocator struct {
	inst     *models.Instrument
	allocErr error
	allocs   int
	requests []pool.AllocateRequest
	uses     []bool
	useOpts  []pool.UseOptions
	useErrs  []error
	releases int
}

func (a *fakeAllocator) Allocate(_ context.Context, req pool.AllocateRequest) (*models.Instrument, error) {
	a.allocs++
	a.requests = append(a.requests, req)
	if a.allocErr != nil {
		return nil, a.allocErr
	}
	if a.inst == nil {
		return nil, common.ErrResourceExhausted
	}
	return a.inst, nil
}

func (a *fakeAllocator) Use(_ context.Context, _ *models.Instrument, success bool, opts pool.UseOptions) (*models.UsageRecord, error) {
	a.uses = append(a.uses, success)
	a.useOpts = append(a.useOpts, opts)
	if len(a.useErrs) > 0 {
		err := a.useErrs[0]
		a.useErrs = a.useErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.UsageRecord{Success: success}, nil
}

func (a *fakeAllocator) Release(context.Context, *models.Instrument) error {
	a.releases++
	return nil
}

func (a *fakeAllocator) calls() int {
	return a.allocs + len(a.uses) + a.releases
}

type recordingProgress struct {
	mu    sync.Mutex
	saved []models.Progress
}

func (r *recordingProgress) Save(_ context.Context, p *models.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, *p)
	return nil
}

func (r *recordingProgress) last() models.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[len(r.saved)-1]
}
