package main

import (
	"fmt"
	"os"

	"github.com/midbel/docbook/cmd/cli"
	"github.com/midbel/docbook/docbook"
)

var transformCmd = cli.Command{
	Name:    "transform",
	Alias:   []string{"tf"},
	Summary: "transform a DocBook document into html",
	Handler: &TransformCmd{},
}

type TransformCmd struct{}

func (c *TransformCmd) Run(args []string) error {
	opts := createOptions("transform")
	cfg, logger, err := opts.Parse(args)
	if err != nil {
		return err
	}
	if len(opts.Args()) != 1 {
		return fmt.Errorf("transform: expected exactly one source document")
	}
	source := opts.Args()[0]

	tf, err := cfg.Transformer(source, logger)
	if err != nil {
		return err
	}
	var res *docbook.Result
	transform := func() {
		res, err = tf.Transform()
	}
	if interactive(cfg) {
		s := cli.NewSpinner(os.Stderr)
		s.SetMessage("transforming " + source)
		s.Run(transform)
	} else {
		transform()
	}
	if err != nil {
		printFailure(source, err)
		return errFail
	}
	printResult(source, res.Output, len(res.Chunks))
	return nil
}
