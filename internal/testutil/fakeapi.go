// Package testutil provides an in-memory fake of the remote task service
// for tests. It implements the same HTTP/JSON contract the real service
// honors, including its error-body shape.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// FakeUser is an account known to the fake service.
type FakeUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// FakeTask mirrors the wire shape of a task.
type FakeTask struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FakeService is an in-memory task service behind an httptest server.
// Zero configuration gives an empty service with no accounts.
type FakeService struct {
	mu      sync.Mutex
	users   map[string]*FakeUser // by email
	tokens  map[string]string    // token -> user id
	tasks   map[string][]FakeTask
	nextID  int
	created time.Time

	// ForceStatus, when non-zero, makes every request fail with that
	// status and a {"message": ForceMessage} body.
	ForceStatus  int
	ForceMessage string
}

// NewFakeService creates an empty fake service. Task creation timestamps
// start at a fixed time and advance one minute per task so created-at
// ordering is deterministic.
func NewFakeService() *FakeService {
	return &FakeService{
		users:   make(map[string]*FakeUser),
		tokens:  make(map[string]string),
		tasks:   make(map[string][]FakeTask),
		created: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Start returns a running httptest server for the fake. Callers own the
// returned server and must Close it.
func (s *FakeService) Start() *httptest.Server {
	return httptest.NewServer(s)
}

// AddUser registers an account directly, bypassing the HTTP surface.
// Returns a valid session token for it.
func (s *FakeService) AddUser(username, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &FakeUser{
		ID:       fmt.Sprintf("u%d", len(s.users)+1),
		Username: username,
		Email:    email,
		Password: password,
	}
	s.users[email] = user

	token := "tok-" + user.ID
	s.tokens[token] = user.ID

	return token
}

// AddTask seeds a task for the user behind token and returns its id.
func (s *FakeService) AddTask(token, title, priority string, completed bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := s.tokens[token]
	t := s.newTask(title, "", priority)
	t.Completed = completed
	s.tasks[userID] = append(s.tasks[userID], t)

	return t.ID
}

// RevokeToken invalidates a previously issued token.
func (s *FakeService) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
}

// TaskCount reports how many tasks the user behind token has.
func (s *FakeService) TaskCount(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks[s.tokens[token]])
}

func (s *FakeService) newTask(title, description, priority string) FakeTask {
	s.nextID++

	if priority == "" {
		priority = "medium"
	}

	t := FakeTask{
		ID:        fmt.Sprintf("t%d", s.nextID),
		Title:     title,
		Priority:  priority,
		CreatedAt: s.created,
	}
	t.Description = description
	s.created = s.created.Add(time.Minute)

	return t
}

// ServeHTTP implements the service contract.
func (s *FakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ForceStatus != 0 {
		writeError(w, s.ForceStatus, s.ForceMessage)

		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case r.Method == http.MethodPost && path == "/auth/register":
		s.handleRegister(w, r)
	case r.Method == http.MethodPost && path == "/auth/login":
		s.handleLogin(w, r)
	case r.Method == http.MethodGet && path == "/auth/me":
		s.handleMe(w, r)
	case strings.HasPrefix(path, "/todos"):
		s.handleTodos(w, r, path)
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *FakeService) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if json.NewDecoder(r.Body).Decode(&body) != nil || body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")

		return
	}

	if _, exists := s.users[body.Email]; exists {
		writeError(w, http.StatusBadRequest, "email already registered")

		return
	}

	user := &FakeUser{
		ID:       fmt.Sprintf("u%d", len(s.users)+1),
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	}
	s.users[body.Email] = user

	token := "tok-" + user.ID
	s.tokens[token] = user.ID

	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (s *FakeService) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	_ = json.NewDecoder(r.Body).Decode(&body)

	user, ok := s.users[body.Email]
	if !ok || user.Password != body.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")

		return
	}

	token := "tok-" + user.ID
	s.tokens[token] = user.ID

	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (s *FakeService) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *FakeService) handleTodos(w http.ResponseWriter, r *http.Request, path string) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")

		return
	}

	rest := strings.TrimPrefix(path, "/todos")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case r.Method == http.MethodGet && rest == "":
		tasks := s.tasks[user.ID]
		if tasks == nil {
			tasks = []FakeTask{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"todos": tasks})

	case r.Method == http.MethodPost && rest == "":
		s.handleCreate(w, r, user)

	case r.Method == http.MethodPut && rest != "":
		s.handleUpdate(w, r, user, rest)

	case r.Method == http.MethodDelete && rest != "":
		s.handleDelete(w, user, rest)

	case r.Method == http.MethodPatch && strings.HasSuffix(rest, "/toggle"):
		s.handleToggle(w, user, strings.TrimSuffix(rest, "/toggle"))

	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *FakeService) handleCreate(w http.ResponseWriter, r *http.Request, user *FakeUser) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}

	if json.NewDecoder(r.Body).Decode(&body) != nil || strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")

		return
	}

	if body.Priority != "" && body.Priority != "low" && body.Priority != "medium" && body.Priority != "high" {
		writeError(w, http.StatusBadRequest, "invalid priority")

		return
	}

	t := s.newTask(body.Title, body.Description, body.Priority)
	s.tasks[user.ID] = append(s.tasks[user.ID], t)

	writeJSON(w, http.StatusCreated, map[string]any{"todo": t})
}

func (s *FakeService) handleUpdate(w http.ResponseWriter, r *http.Request, user *FakeUser, id string) {
	idx := s.find(user.ID, id)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "todo not found")

		return
	}

	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Priority    *string `json:"priority"`
		Completed   *bool   `json:"completed"`
	}

	if json.NewDecoder(r.Body).Decode(&body) != nil {
		writeError(w, http.StatusBadRequest, "malformed body")

		return
	}

	t := &s.tasks[user.ID][idx]

	if body.Title != nil {
		if strings.TrimSpace(*body.Title) == "" {
			writeError(w, http.StatusBadRequest, "title is required")

			return
		}

		t.Title = *body.Title
	}

	if body.Description != nil {
		t.Description = *body.Description
	}

	if body.Priority != nil {
		t.Priority = *body.Priority
	}

	if body.Completed != nil {
		t.Completed = *body.Completed
	}

	writeJSON(w, http.StatusOK, map[string]any{"todo": *t})
}

func (s *FakeService) handleDelete(w http.ResponseWriter, user *FakeUser, id string) {
	idx := s.find(user.ID, id)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "todo not found")

		return
	}

	s.tasks[user.ID] = append(s.tasks[user.ID][:idx], s.tasks[user.ID][idx+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *FakeService) handleToggle(w http.ResponseWriter, user *FakeUser, id string) {
	idx := s.find(user.ID, id)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "todo not found")

		return
	}

	t := &s.tasks[user.ID][idx]
	t.Completed = !t.Completed

	writeJSON(w, http.StatusOK, map[string]any{"todo": *t})
}

func (s *FakeService) find(userID, taskID string) int {
	for i, t := range s.tasks[userID] {
		if t.ID == taskID {
			return i
		}
	}

	return -1
}

func (s *FakeService) authenticate(r *http.Request) (*FakeUser, bool) {
	header := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, false
	}

	userID, ok := s.tokens[token]
	if !ok {
		return nil, false
	}

	for _, user := range s.users {
		if user.ID == userID {
			return user, true
		}
	}

	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = "request failed"
	}

	writeJSON(w, status, map[string]string{"message": message})
}
