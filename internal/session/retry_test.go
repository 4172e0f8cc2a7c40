package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyDriver struct {
	failures  int
	err       error
	calls     map[string]int
	detection Detection
}

func (f *flakyDriver) hit(op string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	if f.calls[op] <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyDriver) DetectStatus(ctx context.Context, acc *models.Account) (Detection, error) {
	if err := f.hit("detect"); err != nil {
		return Detection{}, err
	}
	return f.detection, nil
}

func (f *flakyDriver) Login(ctx context.Context, acc *models.Account) error {
	return f.hit("login")
}

func (f *flakyDriver) ExtractVerificationLink(ctx context.Context, acc *models.Account) (string, error) {
	if err := f.hit("link"); err != nil {
		return "", err
	}
	return "https://v/1", nil
}

func (f *flakyDriver) AttemptPaymentBinding(ctx context.Context, acc *models.Account, card *models.Card) (PaymentResult, error) {
	if err := f.hit("payment"); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{OK: true}, nil
}

var transportErr = fmt.Errorf("observe: %w: status 502", common.ErrTransport)

func TestRetryingDriver_RetriesTransportErrors(t *testing.T) {
	inner := &flakyDriver{failures: 2, err: transportErr, detection: Detection{Authenticated: true, Status: DetectedVerified}}
	d := NewRetryingDriver(inner, 3, time.Millisecond, logging.NewNop())
	ctx := context.Background()

	det, err := d.DetectStatus(ctx, &models.Account{})
	require.NoError(t, err)
	assert.Equal(t, DetectedVerified, det.Status)
	assert.Equal(t, 3, inner.calls["detect"])

	require.NoError(t, d.Login(ctx, &models.Account{}))
	link, err := d.ExtractVerificationLink(ctx, &models.Account{})
	require.NoError(t, err)
	assert.Equal(t, "https://v/1", link)
}

func TestRetryingDriver_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyDriver{failures: 10, err: transportErr}
	d := NewRetryingDriver(inner, 2, time.Millisecond, logging.NewNop())

	err := d.Login(context.Background(), &models.Account{})
	require.ErrorIs(t, err, common.ErrTransport)
	assert.Equal(t, 3, inner.calls["login"])
}

func TestRetryingDriver_DoesNotRetryOtherErrors(t *testing.T) {
	inner := &flakyDriver{failures: 1, err: errors.New("login rejected: bad password")}
	d := NewRetryingDriver(inner, 5, time.Millisecond, logging.NewNop())

	require.Error(t, d.Login(context.Background(), &models.Account{}))
	assert.Equal(t, 1, inner.calls["login"])
}

func TestRetryingDriver_NeverRetriesPayment(t *testing.T) {
	inner := &flakyDriver{failures: 1, err: transportErr}
	d := NewRetryingDriver(inner, 5, time.Millisecond, logging.NewNop())

	_, err := d.AttemptPaymentBinding(context.Background(), &models.Account{}, &models.Card{})
	require.ErrorIs(t, err, common.ErrTransport)
	assert.Equal(t, 1, inner.calls["payment"])
}
