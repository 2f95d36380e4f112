// Package recaptcha verifies reCAPTCHA responses against Google's siteverify
// endpoint.
package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/logger"
)

type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func New(cfg config.RecaptchaConfig, client *http.Client) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Verifier{secret: cfg.Secret, verifyURL: cfg.VerifyURL, client: client}
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Failed is the error returned for a missing or rejected captcha.
func Failed() error {
	e := apperr.Validation(map[string]string{"captcha": "verification failed"})
	e.Code = apperr.CodeCaptchaFailed
	return e
}

// Verify checks token. Without a configured secret verification is disabled
// and every token passes.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.secret == "" {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return Failed()
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return apperr.Provider("captcha verification unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.Provider("captcha verification unavailable", fmt.Errorf("siteverify status %d", resp.StatusCode))
	}

	var out siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apperr.Provider("captcha verification unavailable", fmt.Errorf("decode siteverify: %w", err))
	}
	if !out.Success {
		logger.WarnContext(ctx, "Captcha rejected", "error_codes", out.ErrorCodes)
		return Failed()
	}
	return nil
}
