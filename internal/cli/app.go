package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigix/td/internal/api"
	"github.com/vigix/td/internal/session"
	"github.com/vigix/td/internal/store"
)

var errNotLoggedIn = errors.New("not logged in (run 'td login')")

// App bundles the wired core components for the command layer.
type App struct {
	Config  Config
	Log     *logrus.Logger
	Session *session.Manager
	Client  *api.Client
	Store   *store.Store
}

// newApp wires session, gateway and store together. The session manager is
// the gateway's token source and the gateway is the session's transport,
// so they are connected in two steps.
func newApp(cfg Config, logger *logrus.Logger) (*App, error) {
	sess, err := session.NewManager(cfg.TokenPath, nil, logger)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.BaseURL, sess, api.Options{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	sess.SetGateway(client)

	return &App{
		Config:  cfg,
		Log:     logger,
		Session: sess,
		Client:  client,
		Store:   store.New(client, logger),
	}, nil
}

// requireSession restores and validates the persisted session. Commands
// that talk to the task endpoints call this first so the session invariant
// holds before any task request is issued.
func (a *App) requireSession(ctx context.Context) (api.User, error) {
	user, ok := a.Session.Current()
	if ok {
		return user, nil
	}

	_, err := a.Session.Restore(ctx)
	if err != nil {
		return api.User{}, fmt.Errorf("%w: %w", errNotLoggedIn, err)
	}

	user, ok = a.Session.Current()
	if !ok {
		return api.User{}, errNotLoggedIn
	}

	return user, nil
}

// checkAuth inspects a task-operation error. An auth failure means the
// token is dead: the session is torn down and the collection cleared so no
// stale authenticated state survives.
func (a *App) checkAuth(err error) error {
	if err == nil || !errors.Is(err, api.ErrAuth) {
		return err
	}

	a.Session.Invalidate()
	a.Store.Reset()

	return fmt.Errorf("%w; session cleared, please log in again", err)
}

// themePath is where the display-theme preference persists.
func (a *App) themePath() string {
	return filepath.Join(filepath.Dir(a.Config.TokenPath), "theme")
}
