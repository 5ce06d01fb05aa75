package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/safeconv"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

func newTable(w io.Writer, title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(title)

	return tbl
}

func comma(n int) string {
	return humanize.Comma(int64(n))
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return "-"
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}

	return strings.Join(parts, ",")
}

// renderSummary prints the shape of every index set in p.
func renderSummary(w io.Writer, p *plan.Plan) {
	tree := p.Tree()

	shape := newTable(w, "Scenario tree")
	shape.AppendRows([]table.Row{
		{"Key", p.Key()},
		{"Branching", tree.Branching()},
		{"Stages", tree.Stages()},
		{"Stage duration", tree.StageDuration()},
		{"Horizon", comma(tree.Horizon())},
		{"Leaves", comma(tree.LeafCount())},
		{"Points", comma(tree.Len())},
		{"Approx. size", humanize.Bytes(safeconv.MustInt64ToUint64(plan.ApproxSize(p)))},
	})
	shape.Render()

	stages := newTable(w, "Stages")
	stages.AppendHeader(table.Row{"Stage", "Start", "End", "Branches", "Masters"})

	for stage, count := range tree.StageBranches() {
		start := stage * tree.StageDuration()
		stages.AppendRow(table.Row{stage, start, start + tree.StageDuration(), comma(count), comma(len(p.Gate().Masters(stage)))})
	}

	stages.AppendFooter(table.Row{"", "", "Equate pairs", comma(p.Gate().PairCount()), ""})
	stages.Render()

	if res := p.Resolutions(); len(res) > 0 {
		resTable := newTable(w, "Resolutions")
		resTable.AppendHeader(table.Row{"Name", "Period", "Blocks", "Coarse records", "Shift offsets"})

		for _, r := range res {
			resTable.AppendRow(table.Row{
				r.Name, r.Grid.Period(), comma(r.Grid.Blocks()), comma(len(r.Grid.CoarseSet())), joinInts(r.Offsets()),
			})
		}

		resTable.Render()
	}

	if offsets := p.LinkOffsets(); len(offsets) > 0 {
		links := newTable(w, "Links")
		links.AppendHeader(table.Row{"Offset", "Links"})

		for _, off := range offsets {
			set, _ := p.Links(off)
			links.AppendRow(table.Row{off, comma(len(set))})
		}

		links.Render()
	}

	renderWeightSummary(w, p.Weights())
}

// renderWeightSummary prints the leaf weight distribution.
func renderWeightSummary(w io.Writer, weights *weighting.Weights) {
	summary := weights.Summarize()

	tbl := newTable(w, "Weights")
	tbl.AppendRows([]table.Row{
		{"Total mass", fmt.Sprintf("%.12f", weights.Sum())},
		{"Min leaf", fmt.Sprintf("%.6g", summary.Min)},
		{"Median leaf", fmt.Sprintf("%.6g", summary.Median)},
		{"P95 leaf", fmt.Sprintf("%.6g", summary.P95)},
		{"Max leaf", fmt.Sprintf("%.6g", summary.Max)},
		{"Std. dev.", fmt.Sprintf("%.6g", summary.StdDev)},
		{"Effective scenarios", fmt.Sprintf("%.2f", summary.Effective)},
	})
	tbl.Render()
}

// renderLeafWeights prints one row per terminal scenario.
func renderLeafWeights(w io.Writer, weights *weighting.Weights, limit int) {
	rows := weights.Table()

	tbl := newTable(w, "Leaf weights")
	tbl.AppendHeader(table.Row{"Scenario", "Branch", "Time", "Weight"})

	for i, lw := range rows {
		if limit > 0 && i == limit {
			break
		}

		tbl.AppendRow(table.Row{i, lw.Point.Branch, lw.Point.Time, fmt.Sprintf("%.6g", lw.Weight)})
	}

	if limit > 0 && len(rows) > limit {
		tbl.AppendFooter(table.Row{"", "", "Shown", fmt.Sprintf("%d of %s", limit, comma(len(rows)))})
	}

	tbl.Render()
}

// renderNodeWeights prints the marginal probability of every tree node.
func renderNodeWeights(w io.Writer, p *plan.Plan) error {
	tbl := newTable(w, "Node weights")
	tbl.AppendHeader(table.Row{"Stage", "Branch", "Start", "End", "Probability"})

	for _, node := range p.Tree().Nodes() {
		prob, err := p.Weights().Node(node.Branch, node.Start)
		if err != nil {
			return err
		}

		tbl.AppendRow(table.Row{node.Stage, node.Branch, node.Start, node.End, fmt.Sprintf("%.6g", prob)})
	}

	tbl.Render()

	return nil
}
