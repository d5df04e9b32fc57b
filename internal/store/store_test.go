package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigix/td/internal/api"
	"github.com/vigix/td/internal/store"
	"github.com/vigix/td/internal/task"
	"github.com/vigix/td/internal/testutil"
)

// scriptGateway is a programmable store.Gateway. Unset hooks fail the
// calling test.
type scriptGateway struct {
	t      *testing.T
	list   func(ctx context.Context) ([]task.Task, error)
	create func(ctx context.Context, draft task.Draft) (task.Task, error)
	update func(ctx context.Context, id string, patch task.Patch) (task.Task, error)
	del    func(ctx context.Context, id string) error
	toggle func(ctx context.Context, id string) (task.Task, error)
}

func (g *scriptGateway) ListTasks(ctx context.Context) ([]task.Task, error) {
	if g.list == nil {
		g.t.Fatal("unexpected ListTasks call")
	}

	return g.list(ctx)
}

func (g *scriptGateway) CreateTask(ctx context.Context, draft task.Draft) (task.Task, error) {
	if g.create == nil {
		g.t.Fatal("unexpected CreateTask call")
	}

	return g.create(ctx, draft)
}

func (g *scriptGateway) UpdateTask(ctx context.Context, id string, patch task.Patch) (task.Task, error) {
	if g.update == nil {
		g.t.Fatal("unexpected UpdateTask call")
	}

	return g.update(ctx, id, patch)
}

func (g *scriptGateway) DeleteTask(ctx context.Context, id string) error {
	if g.del == nil {
		g.t.Fatal("unexpected DeleteTask call")
	}

	return g.del(ctx, id)
}

func (g *scriptGateway) ToggleTask(ctx context.Context, id string) (task.Task, error) {
	if g.toggle == nil {
		g.t.Fatal("unexpected ToggleTask call")
	}

	return g.toggle(ctx, id)
}

func seed(n int) []task.Task {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	out := make([]task.Task, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, task.Task{
			ID:        fmt.Sprintf("t%d", i+1),
			Title:     fmt.Sprintf("task %d", i+1),
			Priority:  task.PriorityMedium,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	return out
}

func ids(tasks []task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}

	return out
}

func TestLoadReplacesCollection(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(3), nil
	}}
	s := store.New(gw, nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(s.Tasks()))

	gw.list = func(context.Context) ([]task.Task, error) {
		return seed(1), nil
	}

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, []string{"t1"}, ids(s.Tasks()), "reload replaces wholesale")
}

func TestLoadFailureLeavesCollectionUnchanged(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(2), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	gw.list = func(context.Context) ([]task.Task, error) {
		return nil, &api.Error{Kind: api.ErrServer, StatusCode: 500}
	}

	err := s.Load(context.Background())
	assert.ErrorIs(t, err, api.ErrServer)
	assert.Equal(t, []string{"t1", "t2"}, ids(s.Tasks()))
}

func TestCreateValidatesBeforeNetwork(t *testing.T) {
	t.Parallel()

	// No create hook: any gateway call fails the test.
	s := store.New(&scriptGateway{t: t}, nil)

	_, err := s.Create(context.Background(), task.Draft{Title: "   "})
	assert.ErrorIs(t, err, task.ErrTitleRequired)
	assert.Zero(t, s.Len())
}

func TestCreatePrependsServerTask(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(2), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	gw.create = func(_ context.Context, draft task.Draft) (task.Task, error) {
		// Server-assigned id and timestamp, older than the existing tasks:
		// position must still be first.
		return task.Task{
			ID:        "t99",
			Title:     draft.Title,
			Priority:  task.PriorityMedium,
			CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		}, nil
	}

	created, err := s.Create(context.Background(), task.Draft{Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, "t99", created.ID)
	assert.Equal(t, []string{"t99", "t1", "t2"}, ids(s.Tasks()))
}

func TestCreateFailureLeavesCollectionUnchanged(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(1), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	gw.create = func(context.Context, task.Draft) (task.Task, error) {
		return task.Task{}, &api.Error{Kind: api.ErrValidation, StatusCode: 400, Message: "title is required"}
	}

	_, err := s.Create(context.Background(), task.Draft{Title: "X"})
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Equal(t, []string{"t1"}, ids(s.Tasks()))
}

func TestToggleConfirmThenApply(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(2), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	gw.toggle = func(_ context.Context, id string) (task.Task, error) {
		got, _ := s.Get(id)
		got.Completed = !got.Completed

		return got, nil
	}

	updated, err := s.Toggle(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, updated.Completed)

	local, ok := s.Get("t1")
	require.True(t, ok)
	assert.True(t, local.Completed)

	other, _ := s.Get("t2")
	assert.False(t, other.Completed, "untouched task must stay as it was")
}

func TestFailedToggleDoesNotFlip(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(1), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	gw.toggle = func(context.Context, string) (task.Task, error) {
		return task.Task{}, &api.Error{Kind: api.ErrServer, StatusCode: 500}
	}

	_, err := s.Toggle(context.Background(), "t1")
	require.Error(t, err)

	local, _ := s.Get("t1")
	assert.False(t, local.Completed, "no optimistic flip may survive a failure")
}

func TestMutationOnMissingTaskDropsLocalCopy(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(2), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	gw.toggle = func(context.Context, string) (task.Task, error) {
		return task.Task{}, &api.Error{Kind: api.ErrNotFound, StatusCode: 404, Message: "todo not found"}
	}

	_, err := s.Toggle(context.Background(), "t1")
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, []string{"t2"}, ids(s.Tasks()), "gone server-side means gone locally")
}

func TestPerTaskInFlightGuard(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})

	gw := &scriptGateway{
		t:    t,
		list: func(context.Context) ([]task.Task, error) { return seed(2), nil },
		toggle: func(_ context.Context, id string) (task.Task, error) {
			close(entered)
			<-release

			return task.Task{ID: id, Title: "task", Completed: true}, nil
		},
		del: func(context.Context, string) error { return nil },
	}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, err := s.Toggle(context.Background(), "t1")
		assert.NoError(t, err)
	}()

	<-entered

	// Same id: rejected while the first call is in flight.
	_, err := s.Update(context.Background(), "t1", task.Patch{})
	if !errors.Is(err, store.ErrBusy) {
		// Update validates the zero patch fine; busy must come first.
		t.Errorf("concurrent mutation on same id = %v, want ErrBusy", err)
	}

	// Different id: not blocked by t1's in-flight call.
	gwErr := s.Delete(context.Background(), "t2")
	assert.NotErrorIs(t, gwErr, store.ErrBusy)

	close(release)
	wg.Wait()
}

func TestResetDiscardsStaleResponses(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		close(started)
		<-release

		return seed(3), nil
	}}
	s := store.New(gw, nil)

	done := make(chan error, 1)

	go func() {
		done <- s.Load(context.Background())
	}()

	<-started
	s.Reset() // logout while the list response is in flight
	close(release)

	err := <-done
	assert.ErrorIs(t, err, store.ErrStale)
	assert.Zero(t, s.Len(), "a stale response must not reintroduce tasks")
}

func TestTasksReturnsCopy(t *testing.T) {
	t.Parallel()

	gw := &scriptGateway{t: t, list: func(context.Context) ([]task.Task, error) {
		return seed(1), nil
	}}
	s := store.New(gw, nil)
	require.NoError(t, s.Load(context.Background()))

	snapshot := s.Tasks()
	snapshot[0].Title = "mutated"

	fresh, _ := s.Get("t1")
	assert.Equal(t, "task 1", fresh.Title, "snapshot mutation must not reach the store")
}

// TestScenarioEndToEnd runs a full user story against the HTTP fake:
// load 2 tasks, create "X" (lands first), toggle it, delete it, and the
// collection matches the original load again.
func TestScenarioEndToEnd(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeService()
	srv := fake.Start()
	t.Cleanup(srv.Close)

	token := fake.AddUser("ada", "ada@example.com", "hunter2")
	fake.AddTask(token, "first", task.PriorityLow, false)
	fake.AddTask(token, "second", task.PriorityHigh, false)

	client := api.NewClient(srv.URL, staticToken(token), api.Options{})
	s := store.New(client, nil)
	ctx := context.Background()

	require.NoError(t, s.Load(ctx))
	require.Equal(t, 2, s.Len())

	baseline := ids(s.Tasks())

	created, err := s.Create(ctx, task.Draft{Title: "X"})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, created.ID, ids(s.Tasks())[0], "new task must be first")

	toggled, err := s.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	for _, id := range baseline {
		got, ok := s.Get(id)
		require.True(t, ok)
		assert.False(t, got.Completed, "other tasks unchanged")
	}

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.Equal(t, baseline, ids(s.Tasks()), "collection back to the original load result")
}

type staticToken string

func (s staticToken) Token() (string, bool) {
	return string(s), s != ""
}
