package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// Tool name constants.
const (
	ToolNameBuildPlan   = "build_plan"
	ToolNameVerifyPlan  = "verify_plan"
	ToolNameLeafWeights = "leaf_weights"
)

// DefaultLeafRows bounds the leaf_weights table when no limit is given.
const DefaultLeafRows = 64

// Input types (auto-generate JSON schemas via struct tags).

// BuildPlanInput is the input schema for the build_plan tool.
type BuildPlanInput struct {
	Request  plan.Request `json:"request"            jsonschema:"tree shape, resolutions, link offsets and optional probability table"`
	Sections []string     `json:"sections,omitempty" jsonschema:"document sections to return (default: all)"`
}

// VerifyPlanInput is the input schema for the verify_plan tool.
type VerifyPlanInput struct {
	Request plan.Request `json:"request" jsonschema:"tree shape, resolutions, link offsets and optional probability table"`
}

// LeafWeightsInput is the input schema for the leaf_weights tool.
type LeafWeightsInput struct {
	Request plan.Request `json:"request"         jsonschema:"tree shape and optional probability table"`
	Limit   int          `json:"limit,omitempty" jsonschema:"maximum leaf rows (default: 64)"`
}

// CheckResult is one structural check reported by verify_plan.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// VerifyReport is the verify_plan result.
type VerifyReport struct {
	Key    string        `json:"key"`
	Passed bool          `json:"passed"`
	Failed int           `json:"failed"`
	Checks []CheckResult `json:"checks"`
}

// LeafWeightsReport is the leaf_weights result. Leaves holds at most the
// requested number of rows; Summary always covers every leaf.
type LeafWeightsReport struct {
	Key     string                 `json:"key"`
	Total   int                    `json:"total"`
	Leaves  []weighting.LeafWeight `json:"leaves"`
	Summary weighting.Summary      `json:"summary"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) build(ctx context.Context, req plan.Request) (*plan.Plan, error) {
	req.Limits = s.limits

	p, err := s.builder.Build(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", plan.Category(err), err)
	}

	return p, nil
}

func (s *Server) handleBuildPlan(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input BuildPlanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	sections, err := plan.ParseSections(strings.Join(input.Sections, ","))
	if err != nil {
		return errorResult(err)
	}

	p, err := s.build(ctx, input.Request)
	if err != nil {
		return errorResult(err)
	}

	doc, err := p.Document(sections...)
	if err != nil {
		return errorResult(fmt.Errorf("%s: %w", plan.Category(err), err))
	}

	return jsonResult(doc)
}

func (s *Server) handleVerifyPlan(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input VerifyPlanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	p, err := s.build(ctx, input.Request)
	if err != nil {
		return errorResult(err)
	}

	checks := p.Checks()
	report := VerifyReport{
		Key:    p.Key(),
		Failed: plan.Failed(checks),
		Checks: make([]CheckResult, 0, len(checks)),
	}
	report.Passed = report.Failed == 0

	for _, c := range checks {
		result := CheckResult{Name: c.Name, Passed: c.Err == nil}
		if c.Err != nil {
			result.Error = c.Err.Error()
		}

		report.Checks = append(report.Checks, result)
	}

	return jsonResult(report)
}

func (s *Server) handleLeafWeights(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input LeafWeightsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	p, err := s.build(ctx, input.Request)
	if err != nil {
		return errorResult(err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultLeafRows
	}

	leaves := p.Weights().Table()

	return jsonResult(LeafWeightsReport{
		Key:     p.Key(),
		Total:   len(leaves),
		Leaves:  leaves[:min(limit, len(leaves))],
		Summary: p.Weights().Summarize(),
	})
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
