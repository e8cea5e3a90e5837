package api

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

	"github.com/google/uuid"

	"sgb-web/library"
	"sgb-web/logger"
)

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	BearerToken() string
}

// Client talks to the SGB REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets a whole-request timeout; zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.Component("api") }
}

// New builds a client for baseURL. tokens may be nil when only public
// endpoints are used.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		log:        logger.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LoginResponse is the body of POST /login.
type LoginResponse struct {
	Status string
	Token  string
	Perfil string
	User   string
	UserID string
}

// OK reports a successful login: status "success" and a token.
func (r LoginResponse) OK() bool {
	return r.Status == "success" && r.Token != ""
}

// Login exchanges credentials for a session. The body is decoded whatever the
// HTTP status, since the backend reports failures in the status field.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	resp, raw, err := c.send(ctx, http.MethodPost, "/login", nil, body, false)
	if err != nil {
		return LoginResponse{}, err
	}

	var rec library.Record
	if err := decode(raw, &rec); err != nil || rec == nil {
		if resp.StatusCode/100 != 2 {
			return LoginResponse{}, c.statusError(http.MethodPost, "/login", resp.StatusCode, raw)
		}
		return LoginResponse{}, &DecodeError{Path: "/login", Err: errOrEmpty(err)}
	}
	return LoginResponse{
		Status: rec.String("status"),
		Token:  rec.String("token"),
		Perfil: rec.String("perfil"),
		User:   rec.String("user"),
		UserID: rec.String("userId"),
	}, nil
}

// List GETs a collection. A body that is not a JSON array yields an empty list.
func (c *Client) List(ctx context.Context, endpoint string, query url.Values) ([]library.Record, error) {
	raw, err := c.call(ctx, http.MethodGet, endpoint, query, nil, true)
	if err != nil {
		return nil, err
	}

	var v any
	if err := decode(raw, &v); err != nil {
		c.log.Warn().Str("path", endpoint).Err(err).Msg("list body is not JSON, treating as empty")
		return []library.Record{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return []library.Record{}, nil
	}
	out := make([]library.Record, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, library.Record(m))
		}
	}
	return out, nil
}

// Create POSTs payload to endpoint and returns the created record. A body
// that is not a JSON object yields an empty record.
func (c *Client) Create(ctx context.Context, endpoint string, payload any) (library.Record, error) {
	raw, err := c.call(ctx, http.MethodPost, endpoint, nil, payload, true)
	if err != nil {
		return nil, err
	}
	return asRecord(raw), nil
}

// CreatePublic is Create without authentication.
func (c *Client) CreatePublic(ctx context.Context, endpoint string, payload any) (library.Record, error) {
	raw, err := c.call(ctx, http.MethodPost, endpoint, nil, payload, false)
	if err != nil {
		return nil, err
	}
	return asRecord(raw), nil
}

// Update PUTs payload to endpoint/id.
func (c *Client) Update(ctx context.Context, endpoint, id string, payload any) (library.Record, error) {
	raw, err := c.call(ctx, http.MethodPut, itemPath(endpoint, id), nil, payload, true)
	if err != nil {
		return nil, err
	}
	return asRecord(raw), nil
}

// Delete issues DELETE endpoint/id.
func (c *Client) Delete(ctx context.Context, endpoint, id string) error {
	_, err := c.call(ctx, http.MethodDelete, itemPath(endpoint, id), nil, nil, true)
	return err
}

// call is send plus the 2xx check.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, auth bool) ([]byte, error) {
	resp, raw, err := c.send(ctx, method, path, query, body, auth)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, c.statusError(method, path, resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, auth bool) (*http.Response, []byte, error) {
	var token string
	if auth {
		if c.tokens != nil {
			token = c.tokens.BearerToken()
		}
		if token == "" {
			return nil, nil, library.ErrNotLoggedIn
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Str("method", method).Str("path", path).Str("request_id", requestID).Err(err).Msg("request failed")
		return nil, nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, &TransportError{Method: method, Path: path, Err: err}
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("request_id", requestID).
		Msg("request")
	return resp, raw, nil
}

func (c *Client) statusError(method, path string, status int, raw []byte) error {
	err := &StatusError{Method: method, Path: path, Status: status, Message: serverMessage(raw)}
	c.log.Warn().Str("method", method).Str("path", path).Int("status", status).Str("message", err.Message).Msg("request rejected")
	return err
}

// serverMessage extracts "message" or "error" from a JSON error body.
func serverMessage(raw []byte) string {
	var rec library.Record
	if decode(raw, &rec) != nil {
		return ""
	}
	for _, k := range []string{"message", "error", "mensagem"} {
		if s := strings.TrimSpace(rec.String(k)); s != "" {
			return s
		}
	}
	return ""
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func asRecord(raw []byte) library.Record {
	var v any
	if decode(raw, &v) != nil {
		return library.Record{}
	}
	if m, ok := v.(map[string]any); ok {
		return library.Record(m)
	}
	return library.Record{}
}

func itemPath(endpoint, id string) string {
	return endpoint + "/" + url.PathEscape(id)
}

func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return errors.New("empty body")
}
