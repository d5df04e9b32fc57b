package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/vigix/td/internal/task"
	"github.com/vigix/td/internal/view"
)

var (
	errTitleArgRequired = errors.New("title is required")
	errIDRequired       = errors.New("task ID is required")
	errNothingToEdit    = errors.New("nothing to edit (set --title, --description or --priority)")
)

func (a *App) lsCmd() *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.String("filter", "all", "Completion filter (all|active|completed)")
	fs.String("priority", "all", "Priority filter (all|low|medium|high)")
	fs.String("sort", view.DefaultSort, "Sort key (created_asc|created_desc|priority_asc|priority_desc)")
	fs.Bool("counts", false, "Show total/active/completed counts")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List tasks",
		Long:  "Fetch the task collection and print it filtered and sorted.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			params, err := lsParams(fs)
			if err != nil {
				return err
			}

			_, err = a.requireSession(ctx)
			if err != nil {
				return err
			}

			err = a.Store.Load(ctx)
			if err != nil {
				return a.checkAuth(err)
			}

			proj := view.Project(a.Store.Tasks(), params)

			showCounts, _ := fs.GetBool("counts")
			renderProjection(o, proj, showCounts)

			return nil
		},
	}
}

func lsParams(fs *flag.FlagSet) (view.Params, error) {
	rawFilter, _ := fs.GetString("filter")

	filter, err := view.ParseFilter(rawFilter)
	if err != nil {
		return view.Params{}, err
	}

	rawPriority, _ := fs.GetString("priority")

	priority := "all"
	if rawPriority != "" && rawPriority != "all" {
		priority, err = task.ParsePriority(rawPriority)
		if err != nil {
			return view.Params{}, err
		}
	}

	rawSort, _ := fs.GetString("sort")

	sortKey, err := view.ParseSort(rawSort)
	if err != nil {
		return view.Params{}, err
	}

	return view.Params{Filter: filter, Priority: priority, Sort: sortKey}, nil
}

func (a *App) addCmd() *Command {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.StringP("description", "d", "", "Description text")
	fs.StringP("priority", "p", task.DefaultPriority, "Priority (low|medium|high)")

	return &Command{
		Flags: fs,
		Usage: "add <title> [flags]",
		Short: "Create a task",
		Long:  "Create a task. The server assigns its id and creation time.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTitleArgRequired
			}

			priority, _ := fs.GetString("priority")

			parsed, err := task.ParsePriority(priority)
			if err != nil {
				return err
			}

			description, _ := fs.GetString("description")

			_, err = a.requireSession(ctx)
			if err != nil {
				return err
			}

			created, err := a.Store.Create(ctx, task.Draft{
				Title:       args[0],
				Description: description,
				Priority:    parsed,
			})
			if err != nil {
				return a.checkAuth(err)
			}

			o.Println(created.ID)

			return nil
		},
	}
}

func (a *App) editCmd() *Command {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.String("title", "", "New title")
	fs.StringP("description", "d", "", "New description")
	fs.StringP("priority", "p", "", "New priority (low|medium|high)")

	return &Command{
		Flags: fs,
		Usage: "edit <id> [flags]",
		Short: "Edit a task",
		Long:  "Apply a partial update. Only the flags you set are sent.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 || args[0] == "" {
				return errIDRequired
			}

			patch, err := editPatch(fs)
			if err != nil {
				return err
			}

			if patch.IsZero() {
				return errNothingToEdit
			}

			_, err = a.requireSession(ctx)
			if err != nil {
				return err
			}

			updated, err := a.Store.Update(ctx, args[0], patch)
			if err != nil {
				return a.checkAuth(err)
			}

			o.Println("updated", updated.ID)

			return nil
		},
	}
}

func editPatch(fs *flag.FlagSet) (task.Patch, error) {
	var patch task.Patch

	if fs.Changed("title") {
		title, _ := fs.GetString("title")
		patch.Title = &title
	}

	if fs.Changed("description") {
		description, _ := fs.GetString("description")
		patch.Description = &description
	}

	if fs.Changed("priority") {
		raw, _ := fs.GetString("priority")

		priority, err := task.ParsePriority(raw)
		if err != nil {
			return task.Patch{}, err
		}

		patch.Priority = &priority
	}

	return patch, nil
}

func (a *App) doneCmd() *Command {
	fs := flag.NewFlagSet("done", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "done <id>",
		Short: "Toggle a task's completed flag",
		Long:  "Flip completion server-side; the local copy updates only after the server confirms.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 || args[0] == "" {
				return errIDRequired
			}

			_, err := a.requireSession(ctx)
			if err != nil {
				return err
			}

			updated, err := a.Store.Toggle(ctx, args[0])
			if err != nil {
				return a.checkAuth(err)
			}

			if updated.Completed {
				o.Println("done:", updated.Title)
			} else {
				o.Println("reopened:", updated.Title)
			}

			return nil
		},
	}
}

func (a *App) rmCmd() *Command {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "rm <id>",
		Short: "Delete a task",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 || args[0] == "" {
				return errIDRequired
			}

			_, err := a.requireSession(ctx)
			if err != nil {
				return err
			}

			err = a.Store.Delete(ctx, args[0])
			if err != nil {
				return a.checkAuth(err)
			}

			o.Println("deleted", args[0])

			return nil
		},
	}
}
