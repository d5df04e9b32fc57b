package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vigix/td/internal/logging"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
func Run(stdin io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	if len(args) < minArgs {
		printUsage(o)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			o.ErrPrintln("error: cannot get working directory:", err)

			return 1
		}
	}

	cfg, _, err := LoadConfig(workDir, flags.configPath, env)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}

	if flags.tokenPath != "" {
		cfg.TokenPath = flags.tokenPath
	}

	if !filepath.IsAbs(cfg.TokenPath) {
		cfg.TokenPath = filepath.Join(workDir, cfg.TokenPath)
	}

	if len(flags.remaining) == 0 {
		printUsage(o)

		return 0
	}

	name := flags.remaining[0]
	if name == "-h" || name == helpFlag {
		printUsage(o)

		return 0
	}

	logger := logging.New(flags.verbose, cfg.LogFile, errOut)

	app, err := newApp(cfg, logger)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			<-sigCh
			cancel()
		}()
	}

	commands := app.commands(stdin)

	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, flags.remaining[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)
	printUsage(o)

	return 1
}

// commands returns the full command set in help order.
func (a *App) commands(stdin io.Reader) []*Command {
	return []*Command{
		a.registerCmd(stdin),
		a.loginCmd(stdin),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.lsCmd(),
		a.addCmd(),
		a.editCmd(),
		a.doneCmd(),
		a.rmCmd(),
		a.shellCmd(stdin),
		a.themeCmd(),
		a.printConfigCmd(),
	}
}

func printUsage(o *IO) {
	o.Println("Usage: td [global flags] <command> [args]")
	o.Println()
	o.Println("A task tracker backed by a remote service.")
	o.Println()
	o.Println("Commands:")
	o.Println("  register <username> <email>  Create an account and log in")
	o.Println("  login <email>                Log in")
	o.Println("  logout                       Log out and forget the session")
	o.Println("  whoami                       Show the logged-in user")
	o.Println("  ls [flags]                   List tasks")
	o.Println("  add <title> [flags]          Create a task")
	o.Println("  edit <id> [flags]            Edit a task")
	o.Println("  done <id>                    Toggle a task's completed flag")
	o.Println("  rm <id>                      Delete a task")
	o.Println("  shell                        Interactive mode")
	o.Println("  theme [light|dark]           Show or set the display theme")
	o.Println("  print-config                 Show the effective configuration")
	o.Println()
	o.Println("Global flags:")
	o.Println("  -C, --cwd <dir>       Work directory (config discovery)")
	o.Println("  -c, --config <file>   Explicit config file")
	o.Println("      --base-url <url>  Override the service URL")
	o.Println("      --token-path <p>  Override the token file location")
	o.Println("  -v, --verbose         Debug logging to stderr")
}

type globalFlags struct {
	workDir    string
	configPath string
	baseURL    string
	tokenPath  string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
)

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	set := func(target *string, name string) (int, error) {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, name)
		}

		*target = args[idx+1]

		return consumedTwo, nil
	}

	switch arg {
	case "-C", "--cwd":
		return set(&flags.workDir, arg)
	case "-c", "--config":
		return set(&flags.configPath, arg)
	case "--base-url":
		return set(&flags.baseURL, arg)
	case "--token-path":
		return set(&flags.tokenPath, arg)
	case "-v", "--verbose":
		flags.verbose = true

		return consumedOne, nil
	case "-h", helpFlag:
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	for _, prefix := range []struct {
		name   string
		target *string
	}{
		{"--cwd=", &flags.workDir},
		{"-C", &flags.workDir},
		{"--config=", &flags.configPath},
		{"--base-url=", &flags.baseURL},
		{"--token-path=", &flags.tokenPath},
	} {
		if after, ok := strings.CutPrefix(arg, prefix.name); ok && after != "" {
			*prefix.target = after

			return consumedOne, nil
		}
	}

	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	return consumedNone, nil
}
