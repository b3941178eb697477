// Command importctl validates and imports pharmacy inventory files from the
// command line, using the same pipeline as the HTTP service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Validate and import pharmacy inventory spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	logger := func() *logrus.Logger {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.WarnLevel)
		if verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		return l
	}

	cmd.AddCommand(
		newTemplateCmd(),
		newValidateCmd(logger),
		newImportCmd(logger),
	)
	return cmd
}
