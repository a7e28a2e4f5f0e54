package fireboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Client talks to the FireBoard REST API. Every call is a single attempt.
type Client struct {
	baseURL     string
	credentials Credentials
	session     *session

	httpClient *http.Client
	authClient *http.Client
}

// NewClient builds a client over the shared transport of httpClient. A nil
// httpClient uses http.DefaultTransport.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
		return nil, fmt.Errorf("fireboard credentials are required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("fireboard base_url: %w", err)
	}

	base := http.DefaultTransport
	var timeout time.Duration
	if httpClient != nil {
		if httpClient.Transport != nil {
			base = httpClient.Transport
		}
		if httpClient.Timeout > 0 {
			timeout = httpClient.Timeout
		}
	}
	stamped := &userAgentTransport{base: base, userAgent: cfg.UserAgent}
	sess := &session{}

	return &Client{
		baseURL:     cfg.BaseURL,
		credentials: cfg.Credentials,
		session:     sess,
		httpClient:  &http.Client{Transport: stamped, Timeout: timeout},
		authClient: &http.Client{
			Transport: &oauth2.Transport{Source: sess, Base: stamped},
			Timeout:   timeout,
		},
	}, nil
}

// HasToken reports whether a login key is held.
func (c *Client) HasToken() bool {
	return c.session.valid()
}

// ClearToken drops the login key; the next refresh logs in again.
func (c *Client) ClearToken() {
	c.session.clear()
}

// Authenticate logs in with the stored credentials. The held token changes
// only on success.
func (c *Client) Authenticate(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.credentials.Username,
		"password": c.credentials.Password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &AuthenticationError{Status: resp.StatusCode, Body: trimBody(body)}
	}

	var login struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &login); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if login.Key == "" {
		return &AuthenticationError{Status: resp.StatusCode, Body: "response has no key"}
	}

	c.session.set(login.Key)
	return nil
}

func (c *Client) devices(ctx context.Context) ([]devicePayload, error) {
	var devices []devicePayload
	if err := c.getJSON(ctx, "/devices.json", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Temps returns the real-time channel readings for a device.
func (c *Client) Temps(ctx context.Context, uuid string) ([]TemperatureReading, error) {
	var temps []TemperatureReading
	if err := c.getJSON(ctx, devicePath(uuid, "temps.json"), &temps); err != nil {
		return nil, err
	}
	return dedupeChannels(temps), nil
}

// DriveStatus returns the latest drivelog entry for a device.
func (c *Client) DriveStatus(ctx context.Context, uuid string) (DriveStatus, error) {
	var status DriveStatus
	if err := c.getJSON(ctx, devicePath(uuid, "drivelog.json"), &status); err != nil {
		return DriveStatus{}, err
	}
	return status, nil
}

// SetDriveOutput posts a new damper percentage. It does not retry.
func (c *Client) SetDriveOutput(ctx context.Context, uuid string, percent int) error {
	if percent < 0 || percent > 100 {
		return &ValidationError{Field: "drive output", Value: percent}
	}

	payload, err := json.Marshal(map[string]int{"output": percent})
	if err != nil {
		return err
	}

	path := devicePath(uuid, "drive.json")
	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &WriteError{Endpoint: path, Status: resp.StatusCode, Body: trimBody(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &FetchError{Endpoint: path, Status: resp.StatusCode, Body: trimBody(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.session.clear()
	}
	return resp, nil
}

func devicePath(uuid, leaf string) string {
	return "/devices/" + url.PathEscape(uuid) + "/" + leaf
}
