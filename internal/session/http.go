package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
)

// HTTPDriver talks JSON to the browser-control service:
//
//	POST /sessions/{email}/observe            -> {authenticated, status?, page_text}
//	POST /sessions/{email}/login              -> {ok, message}
//	POST /sessions/{email}/verification-link  -> {link}
//	POST /sessions/{email}/payment            -> {ok, message}
//
// When observe returns no status the page text is classified locally.
type HTTPDriver struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewHTTPDriver(baseURL string, client *http.Client) *HTTPDriver {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDriver{baseURL: strings.TrimRight(baseURL, "/"), client: client, now: time.Now}
}

type observeResponse struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status,omitempty"`
	PageText      string `json:"page_text"`
}

type loginRequest struct {
	Password      string `json:"password"`
	BackupContact string `json:"backup_contact,omitempty"`
	OTPCode       string `json:"otp_code,omitempty"`
}

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type linkResponse struct {
	Link string `json:"link"`
}

type paymentRequest struct {
	Card models.Card `json:"card"`
}

func (d *HTTPDriver) post(ctx context.Context, email, action string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/%s", d.baseURL, url.PathEscape(email), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", action, email, ctxErr)
		}
		return fmt.Errorf("%s %s: %w: %v", action, email, common.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s %s: %w: status %d", action, email, common.ErrTransport, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", action, email, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", action, email, err)
	}
	return nil
}

func (d *HTTPDriver) DetectStatus(ctx context.Context, acc *models.Account) (Detection, error) {
	var resp observeResponse
	if err := d.post(ctx, acc.Email, "observe", nil, &resp); err != nil {
		return Detection{}, err
	}

	det := Detection{Authenticated: resp.Authenticated}
	if resp.Status != "" {
		det.Status = DetectedStatus(resp.Status)
	} else {
		det.Status = Classify(resp.PageText)
	}
	if det.Status == DetectedError {
		det.Detail = strings.TrimSpace(resp.PageText)
	}
	return det, nil
}

func (d *HTTPDriver) Login(ctx context.Context, acc *models.Account) error {
	req := loginRequest{Password: acc.Password, BackupContact: acc.BackupContact}
	if acc.OTPSeed != "" {
		code, err := TOTP(acc.OTPSeed, d.now())
		if err != nil {
			return err
		}
		req.OTPCode = code
	}

	var resp okResponse
	if err := d.post(ctx, acc.Email, "login", req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("login rejected: %s", resp.Message)
	}
	return nil
}

func (d *HTTPDriver) ExtractVerificationLink(ctx context.Context, acc *models.Account) (string, error) {
	var resp linkResponse
	if err := d.post(ctx, acc.Email, "verification-link", nil, &resp); err != nil {
		return "", err
	}
	if resp.Link == "" {
		return "", common.ErrorNotFound
	}
	return resp.Link, nil
}

func (d *HTTPDriver) AttemptPaymentBinding(ctx context.Context, acc *models.Account, card *models.Card) (PaymentResult, error) {
	var resp okResponse
	if err := d.post(ctx, acc.Email, "payment", paymentRequest{Card: *card}, &resp); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{OK: resp.OK, Message: resp.Message}, nil
}
