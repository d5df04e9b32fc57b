// Package store owns the canonical in-memory task collection and keeps it
// consistent with the remote service. Every mutation is confirm-then-apply:
// local state changes only after the gateway reports success, so the
// collection never reflects an unconfirmed server state.
package store

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vigix/td/internal/api"
	"github.com/vigix/td/internal/task"
)

var (
	// ErrBusy is returned when a mutation targets a task that already has a
	// mutation in flight. Serializing writes per id prevents lost updates
	// when two edits to the same task race.
	ErrBusy = errors.New("task has another change in flight")

	// ErrStale is returned when a response arrives after the store was
	// reset (logout, teardown). The response is discarded, never applied.
	ErrStale = errors.New("stale response discarded")
)

// Gateway is the slice of the remote client the store needs.
type Gateway interface {
	ListTasks(ctx context.Context) ([]task.Task, error)
	CreateTask(ctx context.Context, draft task.Draft) (task.Task, error)
	UpdateTask(ctx context.Context, id string, patch task.Patch) (task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ToggleTask(ctx context.Context, id string) (task.Task, error)
}

// Store is the canonical task collection for one session. Tasks live in a
// keyed arena with a separate insertion-order index; mutation responses are
// applied as targeted upserts and removals, never whole-collection swaps.
// Safe for concurrent use.
type Store struct {
	gateway Gateway
	log     logrus.FieldLogger

	mu       sync.Mutex
	tasks    map[string]task.Task
	order    []string // ids, most recently created first
	inflight map[string]struct{}
	gen      uint64 // bumped by Reset; responses from before a reset are discarded
}

// New creates an empty store backed by gateway.
func New(gateway Gateway, logger logrus.FieldLogger) *Store {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Store{
		gateway:  gateway,
		log:      logger,
		tasks:    make(map[string]task.Task),
		inflight: make(map[string]struct{}),
	}
}

// Load fetches the full collection and replaces the local one wholesale.
// Concurrent loads are not coalesced; the last response to arrive wins.
func (s *Store) Load(ctx context.Context) error {
	gen := s.generation()

	tasks, err := s.gateway.ListTasks(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return ErrStale
	}

	s.tasks = make(map[string]task.Task, len(tasks))
	s.order = s.order[:0]

	for _, t := range tasks {
		if _, dup := s.tasks[t.ID]; dup {
			// Server bug; keep the first occurrence so ids stay unique.
			s.log.WithField("id", t.ID).Warn("duplicate task id in list response")

			continue
		}

		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}

	s.log.WithField("count", len(s.order)).Debug("collection loaded")

	return nil
}

// Create validates the draft locally, then asks the gateway to create it.
// An invalid draft never reaches the network. The server-returned task
// (with assigned id and creation time) is placed at the front of the
// collection regardless of the active sort.
func (s *Store) Create(ctx context.Context, draft task.Draft) (task.Task, error) {
	err := draft.Validate()
	if err != nil {
		return task.Task{}, err
	}

	gen := s.generation()

	created, err := s.gateway.CreateTask(ctx, draft)
	if err != nil {
		return task.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return task.Task{}, ErrStale
	}

	if _, exists := s.tasks[created.ID]; !exists {
		s.order = append([]string{created.ID}, s.order...)
	}

	s.tasks[created.ID] = created

	return created, nil
}

// Toggle flips a task's completed flag through the gateway and applies the
// authoritative result. No optimistic flip: a failure leaves the task
// exactly as it was.
func (s *Store) Toggle(ctx context.Context, id string) (task.Task, error) {
	err := s.begin(id)
	if err != nil {
		return task.Task{}, err
	}
	defer s.end(id)

	gen := s.generation()

	updated, err := s.gateway.ToggleTask(ctx, id)
	if err != nil {
		s.reconcile(id, err, gen)

		return task.Task{}, err
	}

	return updated, s.upsert(updated, gen)
}

// Update applies a partial edit through the gateway and replaces the local
// task with the server's version on success.
func (s *Store) Update(ctx context.Context, id string, patch task.Patch) (task.Task, error) {
	err := patch.Validate()
	if err != nil {
		return task.Task{}, err
	}

	err = s.begin(id)
	if err != nil {
		return task.Task{}, err
	}
	defer s.end(id)

	gen := s.generation()

	updated, err := s.gateway.UpdateTask(ctx, id, patch)
	if err != nil {
		s.reconcile(id, err, gen)

		return task.Task{}, err
	}

	return updated, s.upsert(updated, gen)
}

// Delete removes a task through the gateway, then locally.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.begin(id)
	if err != nil {
		return err
	}
	defer s.end(id)

	gen := s.generation()

	err = s.gateway.DeleteTask(ctx, id)
	if err != nil {
		s.reconcile(id, err, gen)

		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return ErrStale
	}

	s.remove(id)

	return nil
}

// Tasks returns the collection in insertion order (newest created first).
// The result is a copy; callers and the projector never alias store memory.
func (s *Store) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}

	return out
}

// Get returns the task with the given id, if present.
func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]

	return t, ok
}

// Len returns the collection size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Reset empties the collection and invalidates every in-flight response.
// Called on logout and teardown so late responses cannot reintroduce tasks.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]task.Task)
	s.order = nil
	s.gen++
}

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen
}

// begin marks id as having a mutation in flight.
func (s *Store) begin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return ErrBusy
	}

	s.inflight[id] = struct{}{}

	return nil
}

func (s *Store) end(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, id)
}

// upsert applies a confirmed server version of a task.
func (s *Store) upsert(t task.Task, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return ErrStale
	}

	if _, exists := s.tasks[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}

	s.tasks[t.ID] = t

	return nil
}

// reconcile handles a failed mutation. A not-found answer means the task is
// gone server-side; the local copy is dropped so the collection converges.
func (s *Store) reconcile(id string, err error, gen uint64) {
	if !errors.Is(err, api.ErrNotFound) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}

	if _, exists := s.tasks[id]; exists {
		s.log.WithField("id", id).Debug("task gone server-side, dropping local copy")
		s.remove(id)
	}
}

// remove deletes id from the arena and the order index. Callers hold mu.
func (s *Store) remove(id string) {
	delete(s.tasks, id)

	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}
}
