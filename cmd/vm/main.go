// Command vm loads a binary instruction image and runs it to completion,
// printing the top-of-stack value on a clean halt.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/gvmlang/stackvm/internal/diag"
	"github.com/gvmlang/stackvm/vm"
)

func main() {
	app := &cli.App{
		Name:      "vm",
		Usage:     "run a stack-machine binary image",
		UsageText: "vm [options] <image.bc>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "trace", Usage: "log every fetch-decode-execute step"},
			&cli.BoolFlag{Name: "dump-state-on-error", Usage: "print pc and value stack when a run fails"},
			&cli.IntFlag{Name: "steps", Usage: "stop after N instructions (0 = unbounded)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: vm [options] <image.bc>", 2)
	}
	imagePath := c.Args().Get(0)

	sink := diag.New(os.Stderr, c.Bool("trace"))

	code, err := os.ReadFile(imagePath)
	if err != nil {
		wrapped := errors.Wrapf(err, "reading %s", imagePath)
		sink.Error(wrapped)
		return cli.Exit(wrapped, 2)
	}

	opts := []vm.Option{
		vm.WithLogger(sink.Logger()),
		vm.WithTrace(c.Bool("trace")),
	}
	if steps := c.Int("steps"); steps > 0 {
		opts = append(opts, vm.WithStepLimit(steps))
	}

	machine := vm.New(code, opts...)
	runErr := machine.Run(context.Background())

	if runErr != nil {
		sink.Error(runErr)
		if c.Bool("dump-state-on-error") {
			dumpState(machine)
		}
		return cli.Exit(runErr, 1)
	}

	if top, ok := machine.Top(); ok {
		fmt.Println(top)
	}
	return nil
}

func dumpState(machine *vm.VM) {
	fmt.Fprintf(os.Stderr, "pc=%d stack=%# v\n", machine.PC(), pretty.Formatter(machine.Stack()))
}
