// Package client talks to the companion backend's REST API with a
// browser-style session: a sessionid cookie plus a CSRF token echoed from
// the csrftoken cookie into the X-CSRFToken header on unsafe requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/mhai/internal/conversation"
	"github.com/zulandar/mhai/internal/models"
)

// Cookie and header names shared with the backend.
const (
	SessionCookie = "sessionid"
	CSRFCookie    = "csrftoken"
	CSRFHeader    = "X-CSRFToken"
)

// Paths outside the conversation surfaces.
const (
	SessionPath = "/api/auth/session/"
	CSRFPath    = "/api/csrf/"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4096

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("client: %s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("client: %s %s: status %d: %s", e.Method, e.Path, e.Code, body)
}

// Client is an HTTP client for one backend.
type Client struct {
	base *url.URL
	http *http.Client
}

// Opts holds parameters for creating a Client.
type Opts struct {
	BaseURL    string        // required, e.g. http://127.0.0.1:8000
	Timeout    time.Duration // per request; default 30s
	HTTPClient *http.Client  // optional; its Jar is replaced when nil
}

// New creates a Client with an empty cookie jar.
func New(opts Opts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("client: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q must be http or https", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	return &Client{base: base, http: hc}, nil
}

// Login opens a session for username on the reference backend's
// development auth endpoint. The session and CSRF cookies land in the jar.
func (c *Client) Login(ctx context.Context, username string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("client: username is required")
	}
	var user struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	}
	body := map[string]string{"username": username}
	if err := c.do(ctx, http.MethodPost, SessionPath, body, &user); err != nil {
		return nil, err
	}
	return &models.User{ID: user.ID, Username: user.Username}, nil
}

// RefreshCSRF asks the backend to (re)issue the CSRF cookie.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, CSRFPath, nil, nil)
}

// CSRFToken returns the current csrftoken cookie value, if any.
func (c *Client) CSRFToken() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

// List fetches a surface's messages. A nil since returns the full history;
// otherwise only ids strictly greater than *since.
func (c *Client) List(ctx context.Context, s conversation.Surface, since *uint) ([]models.Message, error) {
	path := s.Path
	if since != nil {
		path += "?since_id=" + strconv.FormatUint(uint64(*since), 10)
	}
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send posts text to a surface and returns the stored message.
func (c *Client) Send(ctx context.Context, s conversation.Surface, text string) (models.Message, error) {
	var msg models.Message
	body := map[string]string{s.InputField: text}
	if err := c.do(ctx, http.MethodPost, s.Path, body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Surface binds the client to one surface so it satisfies
// conversation.Transport.
func (c *Client) Surface(s conversation.Surface) *SurfaceClient {
	return &SurfaceClient{c: c, surface: s}
}

// SurfaceClient is a Client scoped to one surface.
type SurfaceClient struct {
	c       *Client
	surface conversation.Surface
}

// List implements conversation.Transport.
func (sc *SurfaceClient) List(ctx context.Context, since *uint) ([]models.Message, error) {
	return sc.c.List(ctx, sc.surface, since)
}

// Send implements conversation.Transport.
func (sc *SurfaceClient) Send(ctx context.Context, text string) (models.Message, error) {
	return sc.c.Send(ctx, sc.surface, text)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("client: parse path %q: %w", path, err)
	}
	u := c.base.ResolveReference(&url.URL{Path: c.base.Path + ref.Path, RawQuery: ref.RawQuery})

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		if tok := c.CSRFToken(); tok != "" {
			req.Header.Set(CSRFHeader, tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}
