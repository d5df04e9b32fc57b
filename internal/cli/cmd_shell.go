package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"

	"github.com/vigix/td/internal/api"
	"github.com/vigix/td/internal/task"
	"github.com/vigix/td/internal/view"
)

const shellPrompt = "td> "

func (a *App) shellCmd(stdin io.Reader) *Command {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "shell",
		Short: "Interactive mode",
		Long: "Load the collection once and run commands against it interactively.\n" +
			"Type 'help' inside the shell for the command list.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			_, err := a.requireSession(ctx)
			if err != nil {
				return err
			}

			err = a.Store.Load(ctx)
			if err != nil {
				return a.checkAuth(err)
			}

			params := view.Params{Filter: view.FilterAll, Priority: "all", Sort: view.DefaultSort}
			renderProjection(o, view.Project(a.Store.Tasks(), params), true)

			return a.shellLoop(ctx, o, stdin, &params)
		},
	}
}

func (a *App) shellLoop(ctx context.Context, o *IO, stdin io.Reader, params *view.Params) error {
	// liner gives history and editing on a real terminal; scripted input
	// (tests, pipes with an injected reader) gets a plain line scanner.
	if f, ok := stdin.(*os.File); ok && f == os.Stdin {
		return a.shellLoopLiner(ctx, o, params)
	}

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		quit, err := a.evalShell(ctx, o, params, scanner.Text())
		if err != nil {
			return err
		}

		if quit {
			return nil
		}
	}

	return scanner.Err()
}

func (a *App) shellLoopLiner(ctx context.Context, o *IO, params *view.Params) error {
	prompt := liner.NewLiner()
	defer func() { _ = prompt.Close() }()

	prompt.SetCtrlCAborts(true)

	for {
		line, err := prompt.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if strings.TrimSpace(line) != "" {
			prompt.AppendHistory(line)
		}

		quit, err := a.evalShell(ctx, o, params, line)
		if err != nil {
			return err
		}

		if quit {
			return nil
		}
	}
}

// evalShell executes one shell line. Errors that do not end the session are
// printed and swallowed so the loop keeps going; an auth failure tears the
// session down and ends the shell.
func (a *App) evalShell(ctx context.Context, o *IO, params *view.Params, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	cmd, args := fields[0], fields[1:]

	err := a.evalShellCmd(ctx, o, params, cmd, args)
	if err != nil {
		if errors.Is(err, api.ErrAuth) {
			return true, a.checkAuth(err)
		}

		if errors.Is(err, errShellQuit) {
			return true, nil
		}

		o.ErrPrintln("error:", err)
	}

	return false, nil
}

var (
	errShellQuit       = errors.New("quit")
	errUnknownShellCmd = errors.New("unknown command (type 'help')")
)

func (a *App) evalShellCmd(ctx context.Context, o *IO, params *view.Params, cmd string, args []string) error {
	switch cmd {
	case "quit", "exit", "q":
		return errShellQuit

	case "help", "?":
		printShellHelp(o)

		return nil

	case "ls":
		renderProjection(o, view.Project(a.Store.Tasks(), *params), true)

		return nil

	case "reload":
		err := a.Store.Load(ctx)
		if err != nil {
			return err
		}

		renderProjection(o, view.Project(a.Store.Tasks(), *params), true)

		return nil

	case "add":
		if len(args) == 0 {
			return errTitleArgRequired
		}

		created, err := a.Store.Create(ctx, task.Draft{Title: strings.Join(args, " ")})
		if err != nil {
			return err
		}

		o.Println("added", created.ID)

		return nil

	case "done":
		if len(args) == 0 {
			return errIDRequired
		}

		updated, err := a.Store.Toggle(ctx, args[0])
		if err != nil {
			return err
		}

		if updated.Completed {
			o.Println("done:", updated.Title)
		} else {
			o.Println("reopened:", updated.Title)
		}

		return nil

	case "rm":
		if len(args) == 0 {
			return errIDRequired
		}

		err := a.Store.Delete(ctx, args[0])
		if err != nil {
			return err
		}

		o.Println("deleted", args[0])

		return nil

	case "filter":
		if len(args) == 0 {
			return view.ErrInvalidFilter
		}

		filter, err := view.ParseFilter(args[0])
		if err != nil {
			return err
		}

		params.Filter = filter
		renderProjection(o, view.Project(a.Store.Tasks(), *params), true)

		return nil

	case "priority":
		if len(args) == 0 || args[0] == "all" {
			params.Priority = "all"
		} else {
			priority, err := task.ParsePriority(args[0])
			if err != nil {
				return err
			}

			params.Priority = priority
		}

		renderProjection(o, view.Project(a.Store.Tasks(), *params), true)

		return nil

	case "sort":
		if len(args) == 0 {
			return view.ErrInvalidSort
		}

		sortKey, err := view.ParseSort(args[0])
		if err != nil {
			return err
		}

		params.Sort = sortKey
		renderProjection(o, view.Project(a.Store.Tasks(), *params), true)

		return nil

	default:
		return errUnknownShellCmd
	}
}

func printShellHelp(o *IO) {
	o.Println("Commands:")
	o.Println("  ls                     Show tasks under the current view")
	o.Println("  add <title>            Create a task")
	o.Println("  done <id>              Toggle completion")
	o.Println("  rm <id>                Delete a task")
	o.Println("  filter <f>             all|active|completed")
	o.Println("  priority <p>           all|low|medium|high")
	o.Println("  sort <k>               created_asc|created_desc|priority_asc|priority_desc")
	o.Println("  reload                 Refetch the collection")
	o.Println("  quit                   Leave the shell")
}
