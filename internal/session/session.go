// Package session owns the authenticated-session lifecycle: token
// acquisition, durable persistence, startup validation and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/vigix/td/internal/api"
)

const (
	dirPerms = 0o750
)

var (
	// ErrSuperseded is returned when a login or register response arrives
	// after the session it belongs to was torn down. The response is
	// discarded and no session is established.
	ErrSuperseded = errors.New("session changed while request was in flight")

	errTokenPathEmpty = errors.New("token path cannot be empty")
)

// Gateway is the slice of the remote client the manager needs.
type Gateway interface {
	Login(ctx context.Context, email, password string) (api.Credentials, error)
	Register(ctx context.Context, username, email, password string) (api.Credentials, error)
	Me(ctx context.Context) (api.User, error)
}

// Manager holds the current session and persists its token at path across
// process restarts. The zero session is unauthenticated. Safe for
// concurrent use. Manager implements api.TokenSource.
type Manager struct {
	path    string
	gateway Gateway
	log     logrus.FieldLogger

	mu     sync.Mutex
	token  string
	user   api.User
	authed bool
	epoch  uint64
}

// NewManager creates a manager persisting its token at path.
func NewManager(path string, gateway Gateway, logger logrus.FieldLogger) (*Manager, error) {
	if path == "" {
		return nil, errTokenPathEmpty
	}

	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Manager{path: path, gateway: gateway, log: logger}, nil
}

// SetGateway wires the remote client in after construction. The manager is
// the client's token source, so the two are built in two steps.
func (m *Manager) SetGateway(gateway Gateway) {
	m.gateway = gateway
}

// Token returns the current session token. During startup re-validation the
// restored token is reported so the whoami call carries it.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token, m.token != ""
}

// Current returns the authenticated user, if any.
func (m *Manager) Current() (api.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.user, m.authed
}

// Epoch increments on every logout. Callers snapshot it before issuing a
// request and discard the response if it moved.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.epoch
}

// Restore loads a persisted token and validates it against the service.
// It always resolves: the result is either an authenticated session or a
// clean unauthenticated state with the stale token discarded. The returned
// error is informational (why restore ended unauthenticated) and never
// leaves the manager in a partial state.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	token, err := m.readToken()
	if err != nil || token == "" {
		return false, err
	}

	if expired(token) {
		m.log.Debug("persisted token expired, discarding")
		m.discardToken()

		return false, nil
	}

	// Transient state: token present but not yet validated. Token() reports
	// it so the whoami call below is authenticated.
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	user, err := m.gateway.Me(ctx)
	if err != nil {
		m.mu.Lock()
		m.token = ""
		m.mu.Unlock()
		m.discardToken()

		if errors.Is(err, api.ErrAuth) {
			m.log.Debug("persisted token rejected, discarding")

			return false, nil
		}

		return false, fmt.Errorf("validate session: %w", err)
	}

	m.mu.Lock()
	m.user = user
	m.authed = true
	m.mu.Unlock()

	m.log.WithField("user", user.Username).Debug("session restored")

	return true, nil
}

// Login authenticates and establishes a session. A prior session is left
// untouched on failure.
func (m *Manager) Login(ctx context.Context, email, password string) (api.User, error) {
	epoch := m.Epoch()

	creds, err := m.gateway.Login(ctx, email, password)
	if err != nil {
		return api.User{}, err
	}

	return m.establish(creds, epoch)
}

// Register creates an account and establishes a session.
func (m *Manager) Register(ctx context.Context, username, email, password string) (api.User, error) {
	epoch := m.Epoch()

	creds, err := m.gateway.Register(ctx, username, email, password)
	if err != nil {
		return api.User{}, err
	}

	return m.establish(creds, epoch)
}

func (m *Manager) establish(creds api.Credentials, epoch uint64) (api.User, error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()

		return api.User{}, ErrSuperseded
	}

	m.token = creds.Token
	m.user = creds.User
	m.authed = true
	m.mu.Unlock()

	err := m.writeToken(creds.Token)
	if err != nil {
		// The in-memory session is still valid for this process; only
		// persistence across restarts is lost.
		m.log.WithError(err).Warn("cannot persist session token")
	}

	return creds.User, nil
}

// Logout tears the session down synchronously: in-memory state and the
// persisted token are cleared, and the epoch moves so in-flight responses
// issued under the old session are discarded on arrival. No network call.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.token = ""
	m.user = api.User{}
	m.authed = false
	m.epoch++
	m.mu.Unlock()

	m.discardToken()
}

// Invalidate is Logout triggered by an auth failure observed elsewhere, so
// the user is never shown an authenticated surface with a dead token.
func (m *Manager) Invalidate() {
	m.log.Debug("session invalidated by auth failure")
	m.Logout()
}

func (m *Manager) readToken() (string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", fmt.Errorf("read token file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

func (m *Manager) writeToken(token string) error {
	err := os.MkdirAll(filepath.Dir(m.path), dirPerms)
	if err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	err = atomic.WriteFile(m.path, strings.NewReader(token+"\n"))
	if err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	// Token is a credential: owner-only.
	err = os.Chmod(m.path, 0o600)
	if err != nil {
		return fmt.Errorf("chmod token file: %w", err)
	}

	return nil
}

func (m *Manager) discardToken() {
	err := os.Remove(m.path)
	if err != nil && !os.IsNotExist(err) {
		m.log.WithError(err).Warn("cannot remove token file")
	}
}

// expired reports whether token is a JWT whose exp claim is in the past.
// Opaque tokens (anything that does not parse as a JWT) are never treated
// as expired locally; the whoami call decides.
func expired(token string) bool {
	parser := jwt.NewParser()

	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Before(time.Now())
}
