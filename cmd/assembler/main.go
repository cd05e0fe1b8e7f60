// Command assembler translates a line-oriented mnemonic source file into
// the compact binary image described in stackcode. It is a thin shell:
// all translation logic lives in the assembler package.
package main

import (
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/gvmlang/stackvm/assembler"
	"github.com/gvmlang/stackvm/internal/diag"
)

func main() {
	app := &cli.App{
		Name:      "assembler",
		Usage:     "assemble mnemonic source into a stack-machine binary image",
		UsageText: "assembler [options] <input.asm> <output.bc>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "echo each emitted instruction"},
			&cli.BoolFlag{Name: "dump-labels", Usage: "print the resolved label table after pass 1"},
			&cli.IntFlag{Name: "max-labels", Value: assembler.DefaultLimits().MaxLabels, Usage: "override MAX_LABELS"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: assembler [options] <input.asm> <output.bc>", 1)
	}
	inputPath, outputPath := c.Args().Get(0), c.Args().Get(1)

	sink := diag.New(os.Stderr, c.Bool("verbose"))

	out, err := os.Create(outputPath)
	if err != nil {
		wrapped := errors.Wrapf(err, "creating %s", outputPath)
		sink.Error(wrapped)
		return cli.Exit(wrapped, 1)
	}
	defer out.Close()

	opts := []assembler.Option{
		assembler.WithLogger(sink.Logger()),
		assembler.WithVerbose(c.Bool("verbose")),
		assembler.WithMaxLabels(c.Int("max-labels")),
	}

	if c.Bool("dump-labels") {
		labels, derr := dumpLabels(inputPath, opts...)
		if derr != nil {
			sink.Error(derr)
			return cli.Exit(derr, 1)
		}
		fmt.Fprintf(os.Stderr, "%# v\n", pretty.Formatter(labels))
	}

	if err := assembler.AssembleFile(inputPath, out, opts...); err != nil {
		sink.Error(err)
		return cli.Exit(err, 1)
	}

	return nil
}

func dumpLabels(inputPath string, opts ...assembler.Option) (map[string]int, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", inputPath)
	}
	defer f.Close()
	return assembler.Labels(f, opts...)
}
