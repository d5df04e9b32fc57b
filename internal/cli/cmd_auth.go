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
)

var (
	errEmailRequired    = errors.New("email is required")
	errUsernameRequired = errors.New("username is required")
	errPasswordRequired = errors.New("password is required")
)

func (a *App) loginCmd(stdin io.Reader) *Command {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.String("password", "", "Password (prompted when omitted)")

	return &Command{
		Flags: fs,
		Usage: "login <email> [flags]",
		Short: "Log in",
		Long:  "Authenticate against the service and persist the session token.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 || args[0] == "" {
				return errEmailRequired
			}

			password, err := resolvePassword(fs, stdin)
			if err != nil {
				return err
			}

			user, err := a.Session.Login(ctx, args[0], password)
			if err != nil {
				return err
			}

			o.Println("logged in as", user.Username)

			return nil
		},
	}
}

func (a *App) registerCmd(stdin io.Reader) *Command {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.String("password", "", "Password (prompted when omitted)")

	return &Command{
		Flags: fs,
		Usage: "register <username> <email> [flags]",
		Short: "Create an account and log in",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 || args[0] == "" {
				return errUsernameRequired
			}

			if len(args) < 2 || args[1] == "" {
				return errEmailRequired
			}

			password, err := resolvePassword(fs, stdin)
			if err != nil {
				return err
			}

			user, err := a.Session.Register(ctx, args[0], args[1], password)
			if err != nil {
				return err
			}

			o.Println("registered as", user.Username)

			return nil
		},
	}
}

func (a *App) logoutCmd() *Command {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "logout",
		Short: "Log out and forget the session",
		Long:  "Clear the persisted token and the in-memory session. No network call.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			a.Session.Logout()
			a.Store.Reset()
			o.Println("logged out")

			return nil
		},
	}
}

func (a *App) whoamiCmd() *Command {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "whoami",
		Short: "Show the logged-in user",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			user, err := a.requireSession(ctx)
			if err != nil {
				return err
			}

			o.Printf("%s <%s>\n", user.Username, user.Email)

			return nil
		},
	}
}

// resolvePassword takes the --password flag when set, otherwise prompts
// without echo. Piped input falls back to a plain line read.
func resolvePassword(fs *flag.FlagSet, stdin io.Reader) (string, error) {
	password, _ := fs.GetString("password")
	if password != "" {
		return password, nil
	}

	if f, ok := stdin.(*os.File); ok && f == os.Stdin {
		if prompted, err := promptPassword(); err == nil {
			if prompted == "" {
				return "", errPasswordRequired
			}

			return prompted, nil
		}
	}

	if stdin != nil {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errPasswordRequired
		}

		return line, nil
	}

	return "", errPasswordRequired
}

func promptPassword() (string, error) {
	prompt := liner.NewLiner()
	defer func() { _ = prompt.Close() }()

	return prompt.PasswordPrompt("Password: ")
}
