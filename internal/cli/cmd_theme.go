package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	flag "github.com/spf13/pflag"
)

// Display themes. Presentation reads the preference; the core only
// persists it.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

var errInvalidTheme = errors.New("invalid theme (must be light|dark)")

func (a *App) themeCmd() *Command {
	fs := flag.NewFlagSet("theme", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "theme [light|dark]",
		Short: "Show or set the display theme",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				o.Println(a.loadTheme())

				return nil
			}

			theme := strings.ToLower(args[0])
			if theme != ThemeLight && theme != ThemeDark {
				return fmt.Errorf("%w: %s", errInvalidTheme, args[0])
			}

			err := a.saveTheme(theme)
			if err != nil {
				return err
			}

			o.Println("theme set to", theme)

			return nil
		},
	}
}

func (a *App) loadTheme() string {
	data, err := os.ReadFile(a.themePath())
	if err != nil {
		return ThemeLight
	}

	theme := strings.TrimSpace(string(data))
	if theme != ThemeDark {
		return ThemeLight
	}

	return ThemeDark
}

func (a *App) saveTheme(theme string) error {
	path := a.themePath()

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	err = atomic.WriteFile(path, strings.NewReader(theme+"\n"))
	if err != nil {
		return fmt.Errorf("write theme: %w", err)
	}

	return nil
}

func (a *App) printConfigCmd() *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "print-config",
		Short: "Show the effective configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := FormatConfig(a.Config)
			if err != nil {
				return err
			}

			o.Println(formatted)

			return nil
		},
	}
}
