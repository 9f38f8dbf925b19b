package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/midbel/docbook/cmd/cli"
)

var errFail = errors.New("fail")

// Version is set at build time via ldflags.
var Version = "dev"

const summary = "docbook transforms DocBook documents into chunked html"

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))

	root := prepare()
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(root)
		os.Exit(2)
	}
	err := root.Execute(args)
	if err != nil {
		if s, ok := err.(cli.SuggestionError); ok && len(s.Others) > 0 {
			fmt.Fprintln(os.Stderr, "similar command(s)")
			for _, n := range s.Others {
				fmt.Fprintln(os.Stderr, "-", n)
			}
		}
		if !errors.Is(err, errFail) {
			fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		}
		os.Exit(1)
	}
}

func prepare() *cli.CommandTrie {
	root := cli.New()
	root.Register([]string{"transform"}, &transformCmd)
	root.Register([]string{"batch"}, &batchCmd)
	root.Register([]string{"resolve"}, &resolveCmd)
	root.Register([]string{"assets"}, &assetsCmd)
	root.Register([]string{"version"}, &versionCmd)
	return root
}

func usage(root *cli.CommandTrie) {
	fmt.Fprintln(os.Stderr, summary)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "usage: docbook <command> [options] [arguments]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")
	root.Usage(os.Stderr)
}
