// Package session is the boundary to the external browser-control service
// that drives each account's web session. The core only sees the Driver
// interface; navigation and rendering live behind it.
package session

import (
	"context"

	"github.com/dmitrijs2005/gophenroll/internal/models"
)

// DetectedStatus is what the detector reports for an authenticated page.
type DetectedStatus string

const (
	DetectedSubscribed         DetectedStatus = "subscribed"
	DetectedSubscribedEnhanced DetectedStatus = "subscribed_enhanced"
	DetectedVerified           DetectedStatus = "verified"
	DetectedLinkReady          DetectedStatus = "link_ready"
	DetectedIneligible         DetectedStatus = "ineligible"
	DetectedError              DetectedStatus = "error"
	DetectedUnknown            DetectedStatus = "unknown"
)

// Detection is one observation of an account's session.
type Detection struct {
	Authenticated bool
	Status        DetectedStatus
	// Detail carries the page's error text when Status is DetectedError.
	Detail string
}

// PaymentResult is the outcome of one payment-binding attempt.
type PaymentResult struct {
	OK      bool
	Message string
}

type Driver interface {
	DetectStatus(ctx context.Context, acc *models.Account) (Detection, error)
	Login(ctx context.Context, acc *models.Account) error
	ExtractVerificationLink(ctx context.Context, acc *models.Account) (string, error)
	AttemptPaymentBinding(ctx context.Context, acc *models.Account, card *models.Card) (PaymentResult, error)
}
