// Package orchestrator drives one account through a single pass of the
// enrollment state machine:
//
//	NOT_LOGGED_IN -> LINK_READY -> VERIFIED -> SUBSCRIBED
//
// with INELIGIBLE and ERROR as the other terminals. Every pass ends with a
// progress write, whatever the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/pool"
	"github.com/dmitrijs2005/gophenroll/internal/session"
	"github.com/shopspring/decimal"
)

const (
	MsgLoginFailed       = "login failed"
	MsgLinkNotFound      = "link not found"
	MsgLinkSaved         = "verification link saved"
	MsgAwaitingRefresh   = "verification approved, awaiting status refresh"
	MsgNoInstrument      = "no instrument available"
	MsgSubscribed        = "subscribed"
	MsgAlreadySubscribed = "already subscribed"
	MsgIneligible        = "not eligible"
	MsgUsageNotRecorded  = "instrument usage not recorded"
)

// cancelTimeout bounds the best-effort verification cancel sent after a
// submission gives up.
const cancelTimeout = 10 * time.Second

// Verifier submits verification ids. *verification.Client satisfies it.
type Verifier interface {
	SubmitBatch(ctx context.Context, ids []string) (map[string]models.VerificationJob, error)
	// Cancel is best-effort; its error is only logged.
	Cancel(ctx context.Context, id string) error
}

// Allocator is the part of *pool.Pool the orchestrator uses.
type Allocator interface {
	Allocate(ctx context.Context, req pool.AllocateRequest) (*models.Instrument, error)
	Use(ctx context.Context, inst *models.Instrument, success bool, opts pool.UseOptions) (*models.UsageRecord, error)
	Release(ctx context.Context, inst *models.Instrument) error
}

type ProgressWriter interface {
	Save(ctx context.Context, p *models.Progress) error
}

type Config struct {
	// HasAPIKey enables verification submission. Without it a pass stops
	// at LINK_READY once the link is saved.
	HasAPIKey bool

	DriverTimeout  time.Duration
	LoginTimeout   time.Duration
	PaymentTimeout time.Duration
	SubmitTimeout  time.Duration

	// ChargeAmount is recorded on successful usages when non-zero.
	ChargeAmount decimal.Decimal
}

// Outcome is the result of one pass over an account.
type Outcome struct {
	AccountID string
	Status    models.Status
	Message   string
	Enhanced  bool
	// Err is the cause behind an ERROR outcome, if any.
	Err error
}

// Report is the outcome name used in batch stats.
func (o Outcome) Report() string {
	return o.Status.Report(o.Enhanced)
}

type Orchestrator struct {
	driver   session.Driver
	verifier Verifier
	pool     Allocator
	progress ProgressWriter
	cfg      Config
	log      logging.Logger
	now      func() time.Time
}

func New(driver session.Driver, verifier Verifier, alloc Allocator, progress ProgressWriter, cfg Config, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		driver:   driver,
		verifier: verifier,
		pool:     alloc,
		progress: progress,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func fail(msg string, err error) Outcome {
	return Outcome{Status: models.StatusError, Message: msg, Err: err}
}

// Process runs one pass over acc and records its outcome. acc is updated
// with the resulting status, link and instrument.
func (o *Orchestrator) Process(ctx context.Context, acc *models.Account) Outcome {
	ctx = logging.WithAccountID(ctx, acc.Email)
	o.log.Info(ctx, "processing account", "status", string(acc.Status))

	out := o.process(ctx, acc)
	out.AccountID = acc.Email

	acc.Status = out.Status
	acc.Enhanced = out.Enhanced
	acc.LastError = ""
	if out.Status == models.StatusError {
		acc.LastError = out.Message
	}
	acc.UpdatedAt = o.now()

	o.record(ctx, acc, out.Message)

	if out.Status == models.StatusError {
		o.log.Warn(ctx, "account finished with error", "message", out.Message, "error", out.Err)
	} else {
		o.log.Info(ctx, "account finished", "status", out.Report(), "message", out.Message)
	}
	return out
}

// record writes the account's progress. It survives a canceled ctx so a
// stopped run still keeps the outcome of its in-flight account.
func (o *Orchestrator) record(ctx context.Context, acc *models.Account, msg string) {
	p := &models.Progress{
		AccountID:        acc.Email,
		Status:           acc.Status,
		Message:          msg,
		Enhanced:         acc.Enhanced,
		VerificationLink: acc.VerificationLink,
		InstrumentID:     acc.AssignedInstrumentID,
		UpdatedAt:        o.now(),
	}
	if err := o.progress.Save(context.WithoutCancel(ctx), p); err != nil {
		o.log.Error(ctx, "failed to save progress", "status", string(acc.Status), "error", err)
	}
}

func (o *Orchestrator) detect(ctx context.Context, acc *models.Account) (session.Detection, error) {
	ctx, cancel := withTimeout(ctx, o.cfg.DriverTimeout)
	defer cancel()
	return o.driver.DetectStatus(ctx, acc)
}

func (o *Orchestrator) process(ctx context.Context, acc *models.Account) Outcome {
	det, err := o.detect(ctx, acc)
	if err != nil {
		return fail(fmt.Sprintf("detect status: %v", err), err)
	}

	if !det.Authenticated {
		lctx, cancel := withTimeout(ctx, o.cfg.LoginTimeout)
		loginErr := o.driver.Login(lctx, acc)
		cancel()
		if loginErr != nil {
			o.log.Warn(ctx, "login attempt failed", "error", loginErr)
		}

		det, err = o.detect(ctx, acc)
		if err != nil {
			return fail(fmt.Sprintf("detect status: %v", err), err)
		}
		if !det.Authenticated {
			return fail(MsgLoginFailed, loginErr)
		}
	}

	return o.dispatch(ctx, acc, det, false)
}

// dispatch applies the transition for a detected status. verified is true
// on the re-detection that follows an approved verification.
func (o *Orchestrator) dispatch(ctx context.Context, acc *models.Account, det session.Detection, verified bool) Outcome {
	o.log.Debug(ctx, "status detected", "detected", string(det.Status))

	switch det.Status {
	case session.DetectedSubscribed, session.DetectedSubscribedEnhanced:
		msg := MsgAlreadySubscribed
		if verified {
			msg = MsgSubscribed
		}
		return Outcome{Status: models.StatusSubscribed, Message: msg, Enhanced: det.Status == session.DetectedSubscribedEnhanced}
	case session.DetectedIneligible:
		return Outcome{Status: models.StatusIneligible, Message: MsgIneligible}
	case session.DetectedError:
		msg := det.Detail
		if msg == "" {
			msg = "session reported an error"
		}
		return fail(msg, nil)
	case session.DetectedLinkReady:
		if verified {
			return Outcome{Status: models.StatusVerified, Message: MsgAwaitingRefresh}
		}
		return o.verify(ctx, acc)
	case session.DetectedVerified:
		return o.subscribe(ctx, acc)
	default:
		err := fmt.Errorf("%w: %s", common.ErrUnknownStatus, det.Status)
		return fail(err.Error(), err)
	}
}

func (o *Orchestrator) verify(ctx context.Context, acc *models.Account) Outcome {
	lctx, cancel := withTimeout(ctx, o.cfg.DriverTimeout)
	link, err := o.driver.ExtractVerificationLink(lctx, acc)
	cancel()
	if err != nil || link == "" {
		if err == nil {
			err = common.ErrorNotFound
		}
		return fail(MsgLinkNotFound, err)
	}

	acc.VerificationLink = link
	acc.Status = models.StatusLinkReady
	o.record(ctx, acc, "verification link extracted")

	if !o.cfg.HasAPIKey {
		return Outcome{Status: models.StatusLinkReady, Message: MsgLinkSaved}
	}

	id := session.VerificationIDFromLink(link)
	if id == "" {
		return fail("invalid verification link", common.ErrInvalidRecord)
	}

	sctx, cancel := withTimeout(ctx, o.cfg.SubmitTimeout)
	results, err := o.verifier.SubmitBatch(sctx, []string{id})
	timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
	cancel()

	job, ok := results[id]
	if timedOut || (ok && job.Status == models.JobError && job.Message == common.ErrPollTimeout.Error()) {
		o.cancelVerification(ctx, id)
		if err == nil {
			return fail(common.ErrPollTimeout.Error(), common.ErrPollTimeout)
		}
	}
	if err != nil {
		return fail(fmt.Sprintf("verification failed: %v", err), err)
	}

	if !ok {
		return fail("verification failed: no result", common.ErrVerificationRejected)
	}
	if job.Status != models.JobSuccess {
		msg := job.Message
		if msg == "" {
			msg = common.ErrVerificationRejected.Error()
		}
		return fail(msg, fmt.Errorf("%w: %s", common.ErrVerificationRejected, msg))
	}
	o.log.Info(ctx, "verification approved", "verification_id", id)

	det, err := o.detect(ctx, acc)
	if err != nil {
		return fail(fmt.Sprintf("detect status: %v", err), err)
	}
	return o.dispatch(ctx, acc, det, true)
}

// cancelVerification drops a verification the submission gave up on, so it
// does not keep consuming quota on the service side.
func (o *Orchestrator) cancelVerification(ctx context.Context, id string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := o.verifier.Cancel(cctx, id); err != nil {
		o.log.Warn(ctx, "verification cancel failed", "verification_id", id, "error", err)
		return
	}
	o.log.Info(ctx, "verification canceled", "verification_id", id)
}

func (o *Orchestrator) subscribe(ctx context.Context, acc *models.Account) Outcome {
	inst, err := o.pool.Allocate(ctx, pool.AllocateRequest{Owner: acc.PoolOwner, Lock: true})
	if errors.Is(err, common.ErrResourceExhausted) {
		return fail(MsgNoInstrument, err)
	}
	if err != nil {
		return fail(fmt.Sprintf("allocate instrument: %v", err), err)
	}
	acc.AssignedInstrumentID = inst.ID

	// Usage accounting must land even if the run is being stopped.
	bg := context.WithoutCancel(ctx)

	pctx, cancel := withTimeout(ctx, o.cfg.PaymentTimeout)
	res, err := o.driver.AttemptPaymentBinding(pctx, acc, inst.Card)
	cancel()

	if ctx.Err() != nil {
		if rerr := o.pool.Release(bg, inst); rerr != nil {
			o.log.Error(ctx, "failed to release instrument", "instrument", inst.ID, "error", rerr)
		}
		return fail(fmt.Sprintf("payment aborted: %v", ctx.Err()), ctx.Err())
	}

	success := err == nil && res.OK
	opts := pool.UseOptions{AccountID: acc.Email, IdempotencyKey: attemptKey(acc.Email)}
	if success && !o.cfg.ChargeAmount.IsZero() {
		opts.Amount = decimal.NewNullDecimal(o.cfg.ChargeAmount)
	}
	// the key makes the second call a no-op if the first one did commit
	var uerr error
	for try := 0; try < 2; try++ {
		if _, uerr = o.pool.Use(bg, inst, success, opts); uerr == nil {
			break
		}
		o.log.Error(ctx, "failed to record instrument usage", "instrument", inst.ID, "success", success, "try", try+1, "error", uerr)
	}
	if uerr != nil {
		// an unrecorded attempt must not leave the instrument locked
		if rerr := o.pool.Release(bg, inst); rerr != nil {
			o.log.Error(ctx, "failed to release instrument", "instrument", inst.ID, "error", rerr)
		}
	}

	if success {
		if uerr != nil {
			return Outcome{Status: models.StatusSubscribed, Message: MsgSubscribed + "; " + MsgUsageNotRecorded}
		}
		return Outcome{Status: models.StatusSubscribed, Message: MsgSubscribed}
	}

	msg := res.Message
	switch {
	case err != nil:
		msg = err.Error()
	case msg == "":
		msg = "payment failed"
	}
	if uerr != nil {
		msg += "; " + MsgUsageNotRecorded
	}
	return fail(msg, err)
}

// attemptKey identifies one payment attempt in the usage log.
func attemptKey(accountID string) string {
	suffix, err := common.MakeRandHexString(8)
	if err != nil {
		suffix = strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return accountID + ":" + suffix
}
