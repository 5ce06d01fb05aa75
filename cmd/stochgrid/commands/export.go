package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/persist"
	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
)

// ErrBinaryToTerminal is returned when gob output is requested without --output.
var ErrBinaryToTerminal = errors.New("binary output needs --output")

type exportOptions struct {
	format   string
	compress bool
	sections string
	output   string
	snapshot bool
}

// NewExportCommand creates the export subcommand.
func NewExportCommand(global *GlobalOptions) *cobra.Command {
	var (
		flags treeFlags
		opts  exportOptions
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the built index sets as JSON, YAML or gob",
		Long: `Write the built index sets for a solver to consume.

Without --output the document is written to stdout. With --output the codec is
picked from the file extension unless --format is given, e.g. plan.yaml or
plan.json.lz4. --snapshot writes the restorable plan snapshot instead, which
"stochgrid verify --snapshot" and the plan cache read back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			sections, sectionErr := plan.ParseSections(opts.sections)
			if sectionErr != nil {
				return sectionErr
			}

			p, buildErr := sess.buildPlan(cmd, &flags)
			if buildErr != nil {
				return buildErr
			}

			if opts.snapshot {
				snap := p.Snapshot()

				return writeExport(cmd, &opts, &snap, sess)
			}

			doc, docErr := p.Document(sections...)
			if docErr != nil {
				return docErr
			}

			return writeExport(cmd, &opts, doc, sess)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: json, yaml or gob")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "wrap the output in an LZ4 frame")
	cmd.Flags().StringVar(&opts.sections, "sections", "", "comma separated sections to export (default all)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file")
	cmd.Flags().BoolVar(&opts.snapshot, "snapshot", false, "write the restorable plan snapshot")

	return cmd
}

func exportCodec(opts *exportOptions) (persist.Codec, error) {
	if opts.format == "" && opts.output != "" {
		return persist.ForPath(opts.output)
	}

	format := opts.format
	if format == "" {
		format = persist.FormatJSON
	}

	return persist.ForFormat(format, opts.compress)
}

func writeExport(cmd *cobra.Command, opts *exportOptions, state any, sess *session) error {
	codec, err := exportCodec(opts)
	if err != nil {
		return err
	}

	if opts.output == "" {
		if _, isGob := codec.(*persist.GobCodec); isGob || opts.compress {
			return ErrBinaryToTerminal
		}

		return codec.Encode(cmd.OutOrStdout(), state)
	}

	dir := filepath.Dir(opts.output)
	basename := strings.TrimSuffix(filepath.Base(opts.output), codec.Extension())

	saveErr := persist.SaveState(dir, basename, codec, state)
	if saveErr != nil {
		return fmt.Errorf("export: %w", saveErr)
	}

	sess.logger.Info("plan exported", "path", persist.Path(dir, basename, codec))

	return nil
}
