package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// errFailures marks a run where at least one account failed.
var errFailures = errors.New("one or more accounts failed")

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "checkin",
		Short:         "Daily forum check-in with challenge-cookie solving",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/token.json", "config file (JSON or YAML)")

	root.AddCommand(
		newRunCmd(&cfgFile),
		newSolveCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		if !errors.Is(err, errFailures) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
