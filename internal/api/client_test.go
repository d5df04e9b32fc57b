package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigix/td/internal/api"
	"github.com/vigix/td/internal/task"
	"github.com/vigix/td/internal/testutil"
)

type staticToken string

func (s staticToken) Token() (string, bool) {
	return string(s), s != ""
}

func TestClientAttachesBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"todos": []}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, staticToken("secret"), api.Options{})

	_, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestClientOmitsHeaderWithoutToken(t *testing.T) {
	t.Parallel()

	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"todos": []}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, staticToken(""), api.Options{})

	_, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClientSetsRequestID(t *testing.T) {
	t.Parallel()

	var gotID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"todos": []}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil, api.Options{})

	_, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, gotID)
}

func TestClientErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"401 is auth", 401, `{"message":"bad token"}`, api.ErrAuth},
		{"403 is auth", 403, `{"message":"forbidden"}`, api.ErrAuth},
		{"404 is not found", 404, `{"message":"todo not found"}`, api.ErrNotFound},
		{"400 is validation", 400, `{"message":"title is required"}`, api.ErrValidation},
		{"422 is validation", 422, `{"message":"bad payload"}`, api.ErrValidation},
		{"500 is server", 500, `{"message":"boom"}`, api.ErrServer},
		{"503 is server", 503, ``, api.ErrServer},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer srv.Close()

			client := api.NewClient(srv.URL, nil, api.Options{})

			_, err := client.ListTasks(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, testCase.want)
		})
	}
}

func TestClientExtractsServerMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"title is required"}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil, api.Options{})

	_, err := client.CreateTask(context.Background(), task.Draft{Title: "x"})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "title is required", apiErr.Message)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClientGenericMessageOnOpaqueBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<html>nope</html>`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil, api.Options{})

	_, err := client.ListTasks(context.Background())

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "something went wrong", apiErr.Message)
}

func TestClientNetworkErrorOnDeadEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // dead on purpose

	client := api.NewClient(srv.URL, nil, api.Options{})

	_, err := client.ListTasks(context.Background())
	assert.ErrorIs(t, err, api.ErrNetwork)
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client := api.NewClient(srv.URL, nil, api.Options{})

	// Trip the breaker (opens after more than 3 consecutive failures).
	for i := 0; i < 5; i++ {
		_, _ = client.ListTasks(context.Background())
	}

	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNetwork)
}

func TestClientValidationErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil, api.Options{})

	for i := 0; i < 10; i++ {
		_, err := client.ListTasks(context.Background())
		// Stays a validation error; the breaker never opens.
		assert.ErrorIs(t, err, api.ErrValidation)
	}
}

func TestClientAgainstFakeService(t *testing.T) {
	t.Parallel()

	fake := testutil.NewFakeService()
	srv := fake.Start()
	defer srv.Close()

	client := api.NewClient(srv.URL, nil, api.Options{})
	ctx := context.Background()

	creds, err := client.Register(ctx, "ada", "ada@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "ada", creds.User.Username)
	assert.NotEmpty(t, creds.Token)

	authed := api.NewClient(srv.URL, staticToken(creds.Token), api.Options{})

	created, err := authed.CreateTask(ctx, task.Draft{Title: "ship it", Priority: task.PriorityHigh})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	toggled, err := authed.ToggleTask(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	newTitle := "ship it today"

	updated, err := authed.UpdateTask(ctx, created.ID, task.Patch{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.True(t, updated.Completed, "update must not reset completion")

	tasks, err := authed.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, authed.DeleteTask(ctx, created.ID))

	_, err = authed.ToggleTask(ctx, created.ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
}
