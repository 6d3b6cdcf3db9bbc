// Package zeauth talks to the external auth service: token verification and
// secret-string encryption.
package zeauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("zeauth: http %d: %s", e.StatusCode, msg)
}

func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("zeauth: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("zeauth: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("zeauth: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("zeauth: invalid base url host")
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Verification is the verified caller plus the permission names the auth
// service granted the token.
type Verification struct {
	Identity    types.Identity
	Permissions []string
}

// HasAny reports whether the verification carries at least one of the
// required permissions. An empty required set always passes.
func (v Verification) HasAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	granted := make(map[string]bool, len(v.Permissions))
	for _, p := range v.Permissions {
		granted[p] = true
	}
	for _, p := range required {
		if granted[p] {
			return true
		}
	}
	return false
}

// VerifyToken checks the bearer token with the auth service. Any non-2xx
// answer means the caller is not authenticated.
func (c *Client) VerifyToken(ctx context.Context, token string) (Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/verify?token="+url.QueryEscape(token), nil)
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verification{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Verification{}, apperr.NewForbidden("invalid token")
	}

	var out struct {
		ID          string   `json:"id"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verification{}, err
	}
	if out.ID == "" {
		return Verification{}, apperr.NewForbidden("invalid token")
	}
	return Verification{
		Identity:    types.Identity{UserID: out.ID, Roles: out.Roles},
		Permissions: out.Permissions,
	}, nil
}

// Verify satisfies the identity-verifier port.
func (c *Client) Verify(ctx context.Context, credential string) (types.Identity, error) {
	v, err := c.VerifyToken(ctx, credential)
	if err != nil {
		return types.Identity{}, err
	}
	return v.Identity, nil
}

// EncryptString runs value through the auth service's string encryption.
func (c *Client) EncryptString(ctx context.Context, value string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/encrypt_str?str_for_enc="+url.QueryEscape(value), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", readHTTPError(resp)
	}

	var out struct {
		Value string `json:"encrypt_decrypt_str"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Value == "" {
		return "", errors.New("zeauth: empty encryption result")
	}
	return out.Value, nil
}

func readHTTPError(resp *http.Response) error {
	const maxBody = 4096
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(b),
	}
}
