package view_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vigix/td/internal/task"
	"github.com/vigix/td/internal/view"
)

func fixture() []task.Task {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	return []task.Task{
		{ID: "a", Title: "write report", Priority: task.PriorityLow, CreatedAt: base},
		{ID: "b", Title: "fix bug", Priority: task.PriorityHigh, Completed: true, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Title: "review PR", Priority: task.PriorityMedium, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func ids(tasks []task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}

	return out
}

func TestProjectFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params view.Params
		want   []string
	}{
		{"all", view.Params{Filter: view.FilterAll, Sort: view.SortCreatedAsc}, []string{"a", "b", "c"}},
		{"active", view.Params{Filter: view.FilterActive, Sort: view.SortCreatedAsc}, []string{"a", "c"}},
		{"completed", view.Params{Filter: view.FilterCompleted, Sort: view.SortCreatedAsc}, []string{"b"}},
		{"priority high", view.Params{Priority: task.PriorityHigh, Sort: view.SortCreatedAsc}, []string{"b"}},
		{
			"conjunctive: active AND low",
			view.Params{Filter: view.FilterActive, Priority: task.PriorityLow, Sort: view.SortCreatedAsc},
			[]string{"a"},
		},
		{
			"conjunctive: completed AND low is empty",
			view.Params{Filter: view.FilterCompleted, Priority: task.PriorityLow, Sort: view.SortCreatedAsc},
			[]string{},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			proj := view.Project(fixture(), testCase.params)

			if diff := cmp.Diff(testCase.want, ids(proj.Tasks)); diff != "" {
				t.Errorf("projected ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProjectFilterNeverLeaksWrongCompletion(t *testing.T) {
	t.Parallel()

	proj := view.Project(fixture(), view.Params{Filter: view.FilterActive})
	for _, tk := range proj.Tasks {
		if tk.Completed {
			t.Errorf("active filter leaked completed task %s", tk.ID)
		}
	}

	proj = view.Project(fixture(), view.Params{Filter: view.FilterCompleted})
	for _, tk := range proj.Tasks {
		if !tk.Completed {
			t.Errorf("completed filter leaked active task %s", tk.ID)
		}
	}
}

func TestProjectSorting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sort string
		want []string
	}{
		{view.SortCreatedAsc, []string{"a", "b", "c"}},
		{view.SortCreatedDesc, []string{"c", "b", "a"}},
		{view.SortPriorityAsc, []string{"a", "c", "b"}},
		{view.SortPriorityDesc, []string{"b", "c", "a"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.sort, func(t *testing.T) {
			t.Parallel()

			proj := view.Project(fixture(), view.Params{Sort: testCase.sort})

			if diff := cmp.Diff(testCase.want, ids(proj.Tasks)); diff != "" {
				t.Errorf("sort %s mismatch (-want +got):\n%s", testCase.sort, diff)
			}
		})
	}
}

func TestProjectSortIsStable(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tasks := []task.Task{
		{ID: "x", Priority: task.PriorityMedium, CreatedAt: base},
		{ID: "y", Priority: task.PriorityMedium, CreatedAt: base.Add(time.Hour)},
		{ID: "z", Priority: task.PriorityMedium, CreatedAt: base.Add(2 * time.Hour)},
	}

	// Equal priorities keep their collection order.
	proj := view.Project(tasks, view.Params{Sort: view.SortPriorityDesc})

	if diff := cmp.Diff([]string{"x", "y", "z"}, ids(proj.Tasks)); diff != "" {
		t.Errorf("stable sort mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectCountsIgnoreFilters(t *testing.T) {
	t.Parallel()

	want := view.Counts{Total: 3, Active: 2, Completed: 1}

	paramSets := []view.Params{
		{},
		{Filter: view.FilterActive},
		{Filter: view.FilterCompleted, Priority: task.PriorityHigh},
		{Priority: task.PriorityLow, Sort: view.SortPriorityAsc},
	}

	for _, params := range paramSets {
		proj := view.Project(fixture(), params)
		if proj.Counts != want {
			t.Errorf("Project(%+v).Counts = %+v, want %+v", params, proj.Counts, want)
		}
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	tasks := fixture()
	before := ids(tasks)

	_ = view.Project(tasks, view.Params{Sort: view.SortPriorityDesc, Filter: view.FilterActive})

	if diff := cmp.Diff(before, ids(tasks)); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	t.Parallel()

	params := view.Params{Filter: view.FilterActive, Sort: view.SortPriorityDesc}

	first := view.Project(fixture(), params)
	second := view.Project(fixture(), params)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("projection not idempotent (-first +second):\n%s", diff)
	}
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	got, err := view.ParseFilter("")
	if err != nil || got != view.FilterAll {
		t.Errorf("ParseFilter(\"\") = %q, %v; want all, nil", got, err)
	}

	if _, err := view.ParseFilter("done"); err == nil {
		t.Error("ParseFilter(\"done\") should fail")
	}
}

func TestParseSort(t *testing.T) {
	t.Parallel()

	got, err := view.ParseSort("")
	if err != nil || got != view.DefaultSort {
		t.Errorf("ParseSort(\"\") = %q, %v; want default, nil", got, err)
	}

	if _, err := view.ParseSort("title_asc"); err == nil {
		t.Error("ParseSort(\"title_asc\") should fail")
	}
}
