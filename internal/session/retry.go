package session

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/sethvargo/go-retry"
)

// RetryingDriver retries transport failures of the idempotent driver calls
// with exponential backoff. Payment binding is passed through untouched:
// a repeated charge attempt is never safe to retry blindly.
type RetryingDriver struct {
	next       Driver
	maxRetries uint64
	base       time.Duration
	log        logging.Logger
}

func NewRetryingDriver(next Driver, maxRetries uint64, base time.Duration, log logging.Logger) *RetryingDriver {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &RetryingDriver{next: next, maxRetries: maxRetries, base: base, log: log}
}

func (d *RetryingDriver) backoff() retry.Backoff {
	b := retry.NewExponential(d.base)
	b = retry.WithCappedDuration(10*d.base, b)
	return retry.WithMaxRetries(d.maxRetries, b)
}

func (d *RetryingDriver) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrTransport) {
			d.log.Warn(ctx, "driver call failed, will retry", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (d *RetryingDriver) DetectStatus(ctx context.Context, acc *models.Account) (Detection, error) {
	var det Detection
	err := d.do(ctx, "detect", func(ctx context.Context) error {
		var err error
		det, err = d.next.DetectStatus(ctx, acc)
		return err
	})
	return det, err
}

func (d *RetryingDriver) Login(ctx context.Context, acc *models.Account) error {
	return d.do(ctx, "login", func(ctx context.Context) error {
		return d.next.Login(ctx, acc)
	})
}

func (d *RetryingDriver) ExtractVerificationLink(ctx context.Context, acc *models.Account) (string, error) {
	var link string
	err := d.do(ctx, "extract_link", func(ctx context.Context) error {
		var err error
		link, err = d.next.ExtractVerificationLink(ctx, acc)
		return err
	})
	return link, err
}

func (d *RetryingDriver) AttemptPaymentBinding(ctx context.Context, acc *models.Account, card *models.Card) (PaymentResult, error) {
	return d.next.AttemptPaymentBinding(ctx, acc, card)
}
