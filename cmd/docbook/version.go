package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/midbel/docbook/cmd/cli"
	"github.com/midbel/docbook/xslt"
)

var versionCmd = cli.Command{
	Name:    "version",
	Summary: "print version information",
	Handler: cli.HandlerFunc(printVersion),
}

func printVersion(_ []string) error {
	fmt.Fprintf(os.Stdout, "docbook %s\n", Version)
	fmt.Fprintf(os.Stdout, "xslt %s (%s)\n", xslt.XslVersion, xslt.XslVendor)
	fmt.Fprintf(os.Stdout, "%s %s/%s, %d procs\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.GOMAXPROCS(0))
	return nil
}
