// Command ghbundle reads a declarative bundle manifest and assembles it
// into a single binary artifact for the companion extractor to replay.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/goopsie/ghbundle/pkg/bundle"
	"github.com/goopsie/ghbundle/pkg/manifest"
)

var (
	flagMultiline bool
	flagVerbose   bool
	flagOut       string
	flagCompress  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ghbundle <manifest>",
		Short:         "Assemble a declarative manifest into a bundle artifact",
		Args:          cobra.ExactArgs(1),
		RunE:          runBundle,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.Flags().BoolVarP(&flagMultiline, "multiline", "l", false, "fold base85 output every 70 characters")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log progress and setup problems")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVarP(&flagCompress, "compress", "z", false, "compress the artifact before encoding")
	return cmd
}

func runBundle(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]

	log.SetHandler(logcli.Default)
	if flagVerbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	runID := uuid.New()
	sink := log.WithField("run", runID.String())

	asm := bundle.NewAssembler()

	sink.WithField("manifest", manifestPath).Debug("loading manifest")
	if err := manifest.LoadFile(manifestPath, asm); err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	artifact, err := asm.Assemble()
	if problems := asm.Problems(); len(problems) > 0 {
		bundle.ReportProblems(sink, problems)
	}
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	sink.WithField("bytes", humanize.Bytes(uint64(len(artifact)))).Debug("assembled artifact")

	final := artifact
	if flagCompress {
		final, err = bundle.Compress(artifact)
		if err != nil {
			return fmt.Errorf("compress: %w", err)
		}
		sink.WithField("bytes", humanize.Bytes(uint64(len(final)))).Debug("compressed artifact")
	}

	encoded := bundle.EncodeOutput(final, flagMultiline)

	if flagOut == "" {
		fmt.Println(encoded)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(flagOut), 0o755); err != nil {
		return fmt.Errorf("prepare output directory: %w", err)
	}
	if err := os.WriteFile(flagOut, []byte(encoded), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	sink.WithField("path", flagOut).Info("wrote bundle")
	return nil
}
