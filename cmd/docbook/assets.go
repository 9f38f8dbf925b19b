package main

import (
	"fmt"
	"os"

	"github.com/midbel/docbook/cmd/cli"
	"github.com/midbel/docbook/docbook"
)

var assetsCmd = cli.Command{
	Name:    "assets",
	Summary: "extract the support files of the html output",
	Handler: &AssetsCmd{},
}

type AssetsCmd struct {
	Images bool
}

func (c *AssetsCmd) Run(args []string) error {
	opts := createOptions("assets")
	opts.set.BoolVar(&c.Images, "images", true, "extract admonition graphics")
	cfg, _, err := opts.Parse(args)
	if err != nil {
		return err
	}
	dir := cfg.OutputDir
	if len(opts.Args()) > 0 {
		dir = opts.Args()[0]
	}
	if dir == "" {
		return fmt.Errorf("assets: output directory not given")
	}
	list, err := docbook.ExtractAssets(dir, docbook.AssetOptions{
		Images:          c.Images,
		Highlight:       cfg.Highlight.Enabled,
		HighlightConfig: cfg.Highlight.Config,
	})
	if err != nil {
		return err
	}
	for _, f := range list {
		fmt.Fprintln(os.Stdout, f)
	}
	return nil
}
