// Package api is a typed client for the remote task service. It wraps the
// five task operations and three auth operations, attaches the session
// bearer token, and classifies every failure per the taxonomy in errors.go.
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
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vigix/td/internal/task"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the current session token. The second return is
// false when no session exists; the request is then sent unauthenticated.
type TokenSource interface {
	Token() (string, bool)
}

// User identifies the authenticated principal.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Credentials is the payload of a successful login or register call.
type Credentials struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Client is the remote task gateway. All methods are safe for concurrent
// use. Failures of kind ErrNetwork or ErrServer feed the circuit breaker;
// while the breaker is open every call fails fast with ErrNetwork.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker
	log     logrus.FieldLogger
}

// Options configures a Client. Zero values get sensible defaults.
type Options struct {
	// Timeout applies per request. Defaults to 15s.
	Timeout time.Duration

	// Logger receives debug-level request/response events. Defaults to a
	// logger that discards everything.
	Logger logrus.FieldLogger

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// NewClient creates a gateway for the service at baseURL. tokens may be nil
// for a client that only performs unauthenticated calls.
func NewClient(baseURL string, tokens TokenSource, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	httpc := opts.HTTPClient
	if httpc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		httpc = &http.Client{Timeout: timeout}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "task-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			// 4xx responses are the caller's problem, not the endpoint's
			// health. Only transport and 5xx failures trip the breaker.
			return !isUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
		},
	})

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		tokens:  tokens,
		breaker: breaker,
		log:     logger,
	}
}

func isUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return errors.Is(apiErr.Kind, ErrServer) || errors.Is(apiErr.Kind, ErrNetwork)
	}

	return true
}

// Register creates an account and returns its credentials.
func (c *Client) Register(ctx context.Context, username, email, password string) (Credentials, error) {
	body := map[string]string{"username": username, "email": email, "password": password}

	var out Credentials

	err := c.do(ctx, http.MethodPost, "/auth/register", body, &out)
	if err != nil {
		return Credentials{}, err
	}

	return out, nil
}

// Login authenticates an existing account.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	body := map[string]string{"email": email, "password": password}

	var out Credentials

	err := c.do(ctx, http.MethodPost, "/auth/login", body, &out)
	if err != nil {
		return Credentials{}, err
	}

	return out, nil
}

// Me returns the principal behind the current token. Used to validate a
// restored token at startup.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}

	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	if err != nil {
		return User{}, err
	}

	return out.User, nil
}

// ListTasks fetches the full task collection.
func (c *Client) ListTasks(ctx context.Context) ([]task.Task, error) {
	var out struct {
		Todos []task.Task `json:"todos"`
	}

	err := c.do(ctx, http.MethodGet, "/todos", nil, &out)
	if err != nil {
		return nil, err
	}

	return out.Todos, nil
}

// CreateTask creates a task from the draft and returns the server's copy
// with its assigned id and creation time.
func (c *Client) CreateTask(ctx context.Context, draft task.Draft) (task.Task, error) {
	var out struct {
		Todo task.Task `json:"todo"`
	}

	err := c.do(ctx, http.MethodPost, "/todos", draft, &out)
	if err != nil {
		return task.Task{}, err
	}

	return out.Todo, nil
}

// UpdateTask applies a partial update and returns the server's version.
func (c *Client) UpdateTask(ctx context.Context, id string, patch task.Patch) (task.Task, error) {
	var out struct {
		Todo task.Task `json:"todo"`
	}

	err := c.do(ctx, http.MethodPut, "/todos/"+url.PathEscape(id), patch, &out)
	if err != nil {
		return task.Task{}, err
	}

	return out.Todo, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil)
}

// ToggleTask flips a task's completed flag server-side and returns the
// authoritative result.
func (c *Client) ToggleTask(ctx context.Context, id string) (task.Task, error) {
	var out struct {
		Todo task.Task `json:"todo"`
	}

	err := c.do(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id)+"/toggle", nil, &out)
	if err != nil {
		return task.Task{}, err
	}

	return out.Todo, nil
}

// do runs one request through the breaker, decoding a 2xx body into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.send(ctx, method, path, body, out)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Kind: ErrNetwork, Message: "service unavailable (circuit open)"}
	}

	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	requestID := uuid.New().String()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	logger := c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	logger.Debug("request")

	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.WithError(err).Debug("transport failure")

		return &Error{Kind: ErrNetwork, Message: err.Error(), RequestID: requestID}
	}
	defer func() { _ = resp.Body.Close() }()

	logger = logger.WithField("status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Kind:       classify(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    extractMessage(resp.Body),
			RequestID:  requestID,
		}
		logger.WithField("message", apiErr.Message).Debug("request failed")

		return apiErr
	}

	logger.Debug("response")

	if out == nil {
		return nil
	}

	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	if decodeErr != nil {
		return &Error{
			Kind:       ErrServer,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
			RequestID:  requestID,
		}
	}

	return nil
}

// extractMessage pulls a display message out of an error response body.
// The service uses {"message": ...}; {"error": ...} is accepted as a
// fallback. Anything else yields the generic message.
func extractMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	err := json.NewDecoder(io.LimitReader(r, 1<<16)).Decode(&body)
	if err == nil {
		if body.Message != "" {
			return body.Message
		}

		if body.Error != "" {
			return body.Error
		}
	}

	return genericMessage
}
