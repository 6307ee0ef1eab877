// retouchctl runs the retouch edit pipeline from the terminal.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the retouchctl CLI with the given args.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "retouchctl: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "retouchctl",
		Short:         "retouchctl — host an image and run a remote edit job",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return errors.New("unknown command " + args[0])
		},
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// .env is optional, same as the server binary.
		_ = godotenv.Load()
		return nil
	}

	root.AddCommand(newEditCmd(stdout, stderr))

	return root
}
