package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/stochgrid/pkg/nonanticipativity"
	"github.com/Sumatoshi-tech/stochgrid/pkg/resolution"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// Section names one part of an exported Document.
type Section string

// Document sections.
const (
	SectionPoints      Section = "points"
	SectionCompressed  Section = "points_compressed"
	SectionContinuity  Section = "continuity"
	SectionNodes       Section = "nodes"
	SectionResolutions Section = "resolutions"
	SectionLinks       Section = "links"
	SectionGate        Section = "gate"
	SectionWeights     Section = "weights"
)

// AllSections lists every section in export order.
func AllSections() []Section {
	return []Section{
		SectionPoints, SectionCompressed, SectionContinuity, SectionNodes, SectionResolutions,
		SectionLinks, SectionGate, SectionWeights,
	}
}

// ParseSections parses a comma separated section list. An empty list selects
// every section.
func ParseSections(list string) ([]Section, error) {
	if strings.TrimSpace(list) == "" {
		return AllSections(), nil
	}

	var out []Section

	for name := range strings.SplitSeq(list, ",") {
		s := Section(strings.TrimSpace(name))
		if !slices.Contains(AllSections(), s) {
			return nil, &scenario.ConfigurationError{
				Field:  "sections",
				Value:  name,
				Reason: fmt.Sprintf("want one of %v", AllSections()),
			}
		}

		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}

	return out, nil
}

// ResolutionDocument is the exported form of one resolution.
type ResolutionDocument struct {
	Name      string                   `json:"name"                yaml:"name"`
	Period    int                      `json:"period"              yaml:"period"`
	CoarseSet []resolution.CoarsePoint `json:"coarse_set"          yaml:"coarse_set"`
	Overlap   []resolution.CoarsePoint `json:"overlap"             yaml:"overlap"`
	Shifted   []ShiftedDocument        `json:"shifted,omitempty"   yaml:"shifted,omitempty"`
}

// ShiftedDocument is one shifted grid, aligned with the exported points.
type ShiftedDocument struct {
	Offset int                      `json:"offset" yaml:"offset"`
	Owners []resolution.CoarsePoint `json:"owners" yaml:"owners"`
}

// LinkDocument holds the links of one offset.
type LinkDocument struct {
	Offset int             `json:"offset" yaml:"offset"`
	Links  []scenario.Link `json:"links"  yaml:"links"`
}

// GateDocument lists the master scenarios of every stage and the equate
// chain.
type GateDocument struct {
	Scenarios   int                      `json:"scenarios"    yaml:"scenarios"`
	Masters     [][]int                  `json:"masters"      yaml:"masters"`
	EquatePairs []nonanticipativity.Pair `json:"equate_pairs" yaml:"equate_pairs"`
}

// WeightsDocument holds leaf weights and per-point node weights.
type WeightsDocument struct {
	Leaves []weighting.LeafWeight `json:"leaves" yaml:"leaves"`
	Nodes  []float64              `json:"nodes"  yaml:"nodes"`
}

// Document is a serializable view of a plan, limited to the selected
// sections.
type Document struct {
	Key           string               `json:"key"                     yaml:"key"`
	Branches      int                  `json:"branches"                yaml:"branches"`
	Stages        int                  `json:"stages"                  yaml:"stages"`
	StageDuration int                  `json:"stage_duration"          yaml:"stage_duration"`
	Horizon       int                  `json:"horizon"                 yaml:"horizon"`
	Points        []scenario.GridPoint `json:"points,omitempty"        yaml:"points,omitempty"`
	// Compressed holds run-length records broken at every requested
	// resolution block boundary.
	Compressed    []scenario.GridPoint `json:"points_compressed,omitempty" yaml:"points_compressed,omitempty"`
	Continuity    []scenario.Link      `json:"continuity,omitempty"    yaml:"continuity,omitempty"`
	Nodes         []scenario.Node      `json:"nodes,omitempty"         yaml:"nodes,omitempty"`
	Resolutions   []ResolutionDocument `json:"resolutions,omitempty"   yaml:"resolutions,omitempty"`
	Links         []LinkDocument       `json:"links,omitempty"         yaml:"links,omitempty"`
	Gate          *GateDocument        `json:"gate,omitempty"          yaml:"gate,omitempty"`
	Weights       *WeightsDocument     `json:"weights,omitempty"       yaml:"weights,omitempty"`
}

// Document exports the selected sections. No sections selects all of them.
// The gate section fails with a *scenario.ResourceError when the equate pairs
// exceed the plan's MaxPairs limit.
func (p *Plan) Document(sections ...Section) (Document, error) {
	if len(sections) == 0 {
		sections = AllSections()
	}

	doc := Document{
		Key:           p.key,
		Branches:      p.tree.Branching(),
		Stages:        p.tree.Stages(),
		StageDuration: p.tree.StageDuration(),
		Horizon:       p.tree.Horizon(),
	}

	for _, s := range sections {
		switch s {
		case SectionPoints:
			doc.Points = p.tree.Points()
		case SectionCompressed:
			runs, err := p.Compressed()
			if err != nil {
				return Document{}, fmt.Errorf("compressed section: %w", err)
			}

			doc.Compressed = runs
		case SectionContinuity:
			doc.Continuity = p.tree.Continuity()
		case SectionNodes:
			doc.Nodes = p.tree.Nodes()
		case SectionResolutions:
			doc.Resolutions = p.resolutionDocuments()
		case SectionLinks:
			for _, off := range p.LinkOffsets() {
				doc.Links = append(doc.Links, LinkDocument{Offset: off, Links: p.links[off]})
			}
		case SectionGate:
			gate, err := p.gateDocument()
			if err != nil {
				return Document{}, fmt.Errorf("gate section: %w", err)
			}

			doc.Gate = gate
		case SectionWeights:
			doc.Weights = &WeightsDocument{Leaves: p.weights.Table(), Nodes: p.weights.Nodes()}
		}
	}

	return doc, nil
}

func (p *Plan) resolutionDocuments() []ResolutionDocument {
	out := make([]ResolutionDocument, 0, len(p.resolutions))

	for _, r := range p.resolutions {
		rd := ResolutionDocument{
			Name:      r.Name,
			Period:    r.Grid.Period(),
			CoarseSet: r.Grid.CoarseSet(),
			Overlap:   r.Grid.Overlap(),
		}

		for _, off := range r.offsets {
			rd.Shifted = append(rd.Shifted, ShiftedDocument{Offset: off, Owners: r.shifted[off]})
		}

		out = append(out, rd)
	}

	return out
}

func (p *Plan) gateDocument() (*GateDocument, error) {
	pairs, err := p.gate.EquatePairs(p.request.Limits.MaxPairs)
	if err != nil {
		return nil, err
	}

	gd := &GateDocument{
		Scenarios:   p.gate.Scenarios(),
		Masters:     make([][]int, p.tree.Stages()+1),
		EquatePairs: pairs,
	}

	for w := range gd.Masters {
		gd.Masters[w] = p.gate.Masters(w)
	}

	return gd, nil
}
