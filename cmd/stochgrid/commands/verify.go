package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/persist"
	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
)

// ErrVerifyFailed is returned when at least one check fails.
var ErrVerifyFailed = errors.New("verification failed")

// maxDiffLines caps the snapshot diff printed on mismatch.
const maxDiffLines = 40

// NewVerifyCommand creates the verify subcommand.
func NewVerifyCommand(global *GlobalOptions) *cobra.Command {
	var (
		flags        treeFlags
		snapshotPath string
		colorize     bool
		nocolor      bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the structural invariants of the configured index sets",
		Long: `Build the configured plan and re-check every structural invariant: tree
cardinality and ancestry, the coarse ownership of every resolution, the offset
links, the master classes of the gate and the total probability mass.

With --snapshot the stored plan is restored, re-verified and compared against
the freshly built one; differences are printed as a line diff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nocolor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			} else if colorize {
				color.NoColor = false //nolint:reassign // intentional override of library global
			}

			sess, err := openSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			p, buildErr := sess.buildPlan(cmd, &flags)
			if buildErr != nil {
				return buildErr
			}

			out := cmd.OutOrStdout()
			checks := p.Checks()

			if snapshotPath != "" {
				checks = append(checks, plan.Check{Name: "snapshot " + snapshotPath, Err: compareSnapshot(out, p, snapshotPath)})
			}

			return report(out, checks)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "stored plan snapshot to compare against")
	cmd.Flags().BoolVar(&colorize, "color", false, "force colored output")
	cmd.Flags().BoolVar(&nocolor, "no-color", false, "disable colored output")

	return cmd
}

func loadSnapshot(path string) (plan.Snapshot, error) {
	codec, err := persist.ForPath(path)
	if err != nil {
		return plan.Snapshot{}, err
	}

	file, openErr := os.Open(path)
	if openErr != nil {
		return plan.Snapshot{}, fmt.Errorf("open snapshot: %w", openErr)
	}
	defer file.Close()

	var snap plan.Snapshot

	decodeErr := codec.Decode(file, &snap)
	if decodeErr != nil {
		return plan.Snapshot{}, fmt.Errorf("decode snapshot: %w", decodeErr)
	}

	return snap, nil
}

func compareSnapshot(w io.Writer, p *plan.Plan, path string) error {
	snap, err := loadSnapshot(path)
	if err != nil {
		return err
	}

	stored, restoreErr := plan.FromSnapshot(snap)
	if restoreErr != nil {
		return restoreErr
	}

	want, wantErr := renderYAML(stored)
	if wantErr != nil {
		return wantErr
	}

	got, gotErr := renderYAML(p)
	if gotErr != nil {
		return gotErr
	}

	if want == got {
		return nil
	}

	changed := printDiff(w, want, got)

	return fmt.Errorf("%d lines differ from the stored plan", changed)
}

func renderYAML(p *plan.Plan) (string, error) {
	doc, docErr := p.Document()
	if docErr != nil {
		return "", docErr
	}

	var buf bytes.Buffer

	err := persist.NewYAMLCodec().Encode(&buf, doc)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}

// printDiff prints a line diff of want against got and returns the number of
// changed lines.
func printDiff(w io.Writer, want, got string) int {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(want, got)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	changed := 0

	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}

		prefix, paint := "-", color.New(color.FgRed)
		if d.Type == diffmatchpatch.DiffInsert {
			prefix, paint = "+", color.New(color.FgGreen)
		}

		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			changed++

			if changed <= maxDiffLines {
				paint.Fprintf(w, "%s %s\n", prefix, line)
			}
		}
	}

	if changed > maxDiffLines {
		fmt.Fprintf(w, "... %d more changed lines\n", changed-maxDiffLines)
	}

	return changed
}

func report(w io.Writer, checks []plan.Check) error {
	for _, c := range checks {
		if c.Err == nil {
			color.New(color.FgGreen).Fprintf(w, "PASS  %s\n", c.Name)

			continue
		}

		color.New(color.FgRed).Fprintf(w, "FAIL  %s: %v\n", c.Name, c.Err)
	}

	failed := plan.Failed(checks)
	if failed > 0 {
		color.New(color.FgYellow).Fprintf(w, "%d of %d checks failed\n", failed, len(checks))

		return ErrVerifyFailed
	}

	fmt.Fprintf(w, "all %d checks passed\n", len(checks))

	return nil
}
