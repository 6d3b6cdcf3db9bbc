// Package zenotify sends notifications through the external notification
// service. Hook implementations use it for best-effort delivery after a
// record operation.
package zenotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTarget = "email"

type Client struct {
	baseURL        string
	serviceBaseURL string
	provider       string
	httpClient     *http.Client
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
	return fmt.Sprintf("zenotify: http %d: %s", e.StatusCode, msg)
}

// New builds a client. baseURL hosts notification creation, serviceBaseURL
// hosts delivery; provider is the notification provider id to attach to
// created notifications.
func New(baseURL string, serviceBaseURL string, provider string) (*Client, error) {
	baseURL, err := cleanURL(baseURL)
	if err != nil {
		return nil, err
	}
	serviceBaseURL, err = cleanURL(serviceBaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(provider) == "" {
		return nil, errors.New("zenotify: missing provider")
	}
	return &Client{
		baseURL:        baseURL,
		serviceBaseURL: serviceBaseURL,
		provider:       provider,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func cleanURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, "/")
	if raw == "" {
		return "", errors.New("zenotify: missing base url")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("zenotify: invalid base url")
	}
	return raw, nil
}

// CreateNotification registers an email notification for the recipients and
// returns its id.
func (c *Client) CreateNotification(ctx context.Context, recipients []string, template string, data map[string]any) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"recipients":         recipients,
		"push_subscriptions": map[string]any{},
		"provider":           c.provider,
		"template":           template,
		"params":             map[string]any{"list": []any{data}},
		"target":             []string{defaultTarget},
		"status":             "",
		"last_error":         "",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", readHTTPError(resp)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("zenotify: missing notification id")
	}
	return out.ID, nil
}

// SendNotification triggers delivery of a previously created notification.
func (c *Client) SendNotification(ctx context.Context, notificationID string) error {
	body, _ := json.Marshal(map[string]any{"notificationId": notificationID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceBaseURL+"/send/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readHTTPError(resp)
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	const maxBody = 4096
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(b),
	}
}
