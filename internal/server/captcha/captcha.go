// Package captcha verifies bot-challenge tokens presented at login.
package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
)

// ErrEmptyToken is returned when no challenge token was presented.
var ErrEmptyToken = errors.New("empty captcha token")

// Verifier checks a challenge token. Errors and false are both failures.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// siteVerifyResponse is the common subset of reCAPTCHA, hCaptcha and
// Turnstile siteverify responses.
type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// SiteVerify posts the token to a siteverify endpoint.
type SiteVerify struct {
	secret   string
	endpoint string
	client   *http.Client
}

// DefaultTimeout bounds one siteverify round trip.
const DefaultTimeout = 5 * time.Second

func NewSiteVerify(secret, endpoint string, client *http.Client) *SiteVerify {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &SiteVerify{secret: secret, endpoint: endpoint, client: client}
}

func (v *SiteVerify) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	var resp siteVerifyResponse
	if err := netx.PostForm(ctx, v.client, v.endpoint, form, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// Static answers every verification with a fixed result. Useful for local
// runs and tests.
type Static struct {
	Result bool
	Err    error
}

func (s Static) Verify(context.Context, string, string) (bool, error) {
	return s.Result, s.Err
}
