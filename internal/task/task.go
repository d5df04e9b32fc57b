// Package task defines the task domain model shared by the store, the
// gateway and the projector.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority levels.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	DefaultPriority = PriorityMedium
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidPriority = errors.New("invalid priority (must be low|medium|high)")
)

// Task is a single to-do item. ID and CreatedAt are server-assigned and
// immutable after creation. JSON tags follow the remote wire contract.
type Task struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Draft holds the client-supplied fields for a new task.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// Validate checks the draft before it is allowed near the network.
// Whitespace-only titles are rejected.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrTitleRequired
	}

	if d.Priority != "" && !IsValidPriority(d.Priority) {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, d.Priority)
	}

	return nil
}

// Patch is a partial update. Nil fields are omitted from the request body
// so the server leaves them untouched.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// IsZero reports whether the patch carries no fields.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Completed == nil
}

// Validate checks the patch fields that have client-side preconditions.
func (p Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrTitleRequired
	}

	if p.Priority != nil && !IsValidPriority(*p.Priority) {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, *p.Priority)
	}

	return nil
}

// IsValidPriority reports whether p is a known priority level.
func IsValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// ParsePriority normalizes and validates a user-supplied priority string.
func ParsePriority(s string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(s))
	if !IsValidPriority(p) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPriority, s)
	}

	return p, nil
}

// PriorityOrdinal maps a priority to its sort weight: low=1, medium=2,
// high=3. Unknown values sort below low so malformed server data stays
// visible at a deterministic position.
func PriorityOrdinal(p string) int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}
