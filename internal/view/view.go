// Package view derives display projections from the canonical task
// collection. Projection is a pure function: it never mutates its input
// and holds no state of its own.
package view

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vigix/td/internal/task"
)

// Completion filters.
const (
	FilterAll       = "all"
	FilterActive    = "active"
	FilterCompleted = "completed"
)

// Sort keys. Priority ordering uses low=1, medium=2, high=3.
const (
	SortCreatedAsc   = "created_asc"
	SortCreatedDesc  = "created_desc"
	SortPriorityAsc  = "priority_asc"
	SortPriorityDesc = "priority_desc"
)

// DefaultSort matches the UI default, newest first.
const DefaultSort = SortCreatedDesc

var (
	ErrInvalidFilter = errors.New("invalid filter (must be all|active|completed)")
	ErrInvalidSort   = errors.New("invalid sort (must be created_asc|created_desc|priority_asc|priority_desc)")
)

// Params selects and orders the displayed tasks. The zero value shows
// everything; an empty Sort means DefaultSort.
type Params struct {
	Filter   string // all|active|completed; "" means all
	Priority string // all|low|medium|high; "" means all
	Sort     string
}

// Counts aggregates over the unfiltered collection. Filters affect only
// the displayed sequence, never the counts.
type Counts struct {
	Total     int
	Active    int
	Completed int
}

// Projection is the ordered display sequence plus collection-wide counts.
type Projection struct {
	Tasks  []task.Task
	Counts Counts
}

// ParseFilter validates a completion-filter string.
func ParseFilter(s string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	switch f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActive, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidFilter, s)
	}
}

// ParseSort validates a sort-key string.
func ParseSort(s string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	switch k {
	case "":
		return DefaultSort, nil
	case SortCreatedAsc, SortCreatedDesc, SortPriorityAsc, SortPriorityDesc:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidSort, s)
	}
}

// Project filters, sorts and counts tasks. Filtering is conjunctive: a task
// must pass both the completion and the priority filter. Sorting is stable,
// so tasks that compare equal keep their collection order.
func Project(tasks []task.Task, params Params) Projection {
	proj := Projection{Counts: count(tasks)}

	filtered := make([]task.Task, 0, len(tasks))

	for _, t := range tasks {
		if !matches(t, params) {
			continue
		}

		filtered = append(filtered, t)
	}

	sortKey := params.Sort
	if sortKey == "" {
		sortKey = DefaultSort
	}

	sort.SliceStable(filtered, less(filtered, sortKey))

	proj.Tasks = filtered

	return proj
}

func count(tasks []task.Task) Counts {
	counts := Counts{Total: len(tasks)}

	for _, t := range tasks {
		if t.Completed {
			counts.Completed++
		} else {
			counts.Active++
		}
	}

	return counts
}

func matches(t task.Task, params Params) bool {
	switch params.Filter {
	case FilterActive:
		if t.Completed {
			return false
		}
	case FilterCompleted:
		if !t.Completed {
			return false
		}
	}

	if params.Priority != "" && params.Priority != "all" && t.Priority != params.Priority {
		return false
	}

	return true
}

func less(tasks []task.Task, key string) func(i, j int) bool {
	switch key {
	case SortCreatedAsc:
		return func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) }
	case SortPriorityAsc:
		return func(i, j int) bool {
			return task.PriorityOrdinal(tasks[i].Priority) < task.PriorityOrdinal(tasks[j].Priority)
		}
	case SortPriorityDesc:
		return func(i, j int) bool {
			return task.PriorityOrdinal(tasks[i].Priority) > task.PriorityOrdinal(tasks[j].Priority)
		}
	default: // SortCreatedDesc
		return func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) }
	}
}
