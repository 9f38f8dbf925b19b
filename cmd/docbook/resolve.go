package main

import (
	"fmt"
	"os"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/catalog"
	"github.com/midbel/docbook/cmd/cli"
)

var resolveCmd = cli.Command{
	Name:    "resolve",
	Summary: "print the locations given by the catalogs for identifiers",
	Handler: &ResolveCmd{},
}

type ResolveCmd struct {
	Public string
	Files  bool
}

func (c *ResolveCmd) Run(args []string) error {
	opts := createOptions("resolve")
	opts.set.StringVar(&c.Public, "public", "", "public identifier")
	opts.set.BoolVar(&c.Files, "files", false, "list the catalog files consulted")
	cfg, logger, err := opts.Parse(args)
	if err != nil {
		return err
	}
	cat, err := catalog.Build(catalog.BundledName,
		catalog.WithBundle(bundle.FS()),
		catalog.WithSearchPath(cfg.SearchPath...),
		catalog.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if c.Files {
		for _, f := range cat.Files() {
			fmt.Fprintln(os.Stdout, f)
		}
	}
	ids := opts.Args()
	if len(ids) == 0 && c.Public != "" {
		ids = append(ids, "")
	}
	var unresolved int
	for _, id := range ids {
		ident := id
		if ident == "" {
			ident = c.Public
		}
		loc, ok := cat.Resolve(c.Public, id)
		if !ok {
			unresolved++
			fmt.Fprintf(os.Stdout, "%s %s\n", ident, errStyle.Render("unresolved"))
			continue
		}
		fmt.Fprintf(os.Stdout, "%s %s %s\n", ident, faintStyle.Render("->"), loc)
	}
	if unresolved > 0 {
		return errFail
	}
	return nil
}
