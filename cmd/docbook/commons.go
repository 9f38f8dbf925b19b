package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/pflag"

	"github.com/midbel/docbook/cmd/cli"
	"github.com/midbel/docbook/config"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// options parses the flags of a command on top of the configuration file and
// the environment.
type options struct {
	set   *pflag.FlagSet
	flags *config.Flags
}

func createOptions(name string) *options {
	set := cli.NewFlagSet(name)
	return &options{
		set:   set,
		flags: config.Bind(set),
	}
}

func (o *options) Parse(args []string) (config.Config, *slog.Logger, error) {
	if err := o.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return config.Config{}, nil, errFail
		}
		return config.Config{}, nil, err
	}
	cfg, err := o.flags.Resolve(os.LookupEnv)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, createLogger(cfg), nil
}

func (o *options) Args() []string {
	return o.set.Args()
}

func createLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose || cfg.Trace {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h)
}

// interactive reports whether progress can be animated on stderr.
func interactive(cfg config.Config) bool {
	if cfg.Verbose || cfg.Trace {
		return false
	}
	return term.IsTerminal(os.Stderr.Fd())
}

func printResult(source, output string, chunks int) {
	line := fmt.Sprintf("%s %s -> %s", okStyle.Render("ok"), source, output)
	if chunks > 0 {
		line += faintStyle.Render(fmt.Sprintf(" (%d chunks)", chunks))
	}
	fmt.Fprintln(os.Stdout, line)
}

func printFailure(source string, err error) {
	fmt.Fprintf(os.Stderr, "%s %s: %s\n", errStyle.Render("fail"), source, err)
}
