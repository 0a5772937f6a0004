package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/review"
)

type reviewInput struct {
	Paths     []string `json:"paths" jsonschema:"absolute paths of the JPEG, PNG or MP4 files to review"`
	Channel   string   `json:"channel,omitempty" jsonschema:"placement channel, e.g. Instagram or YouTube"`
	Objective string   `json:"objective,omitempty" jsonschema:"campaign objective, e.g. Awareness or Conversion"`
	Device    string   `json:"device,omitempty" jsonschema:"primary device, e.g. Mobile or Desktop"`
	Combined  bool     `json:"combined,omitempty" jsonschema:"review all files together as one campaign set"`
}

type reviewOutput struct {
	Results []reviewResult `json:"results"`
	Failed  int            `json:"failed"`
}

type reviewResult struct {
	Assets   []string         `json:"assets"`
	OK       bool             `json:"ok"`
	Text     string           `json:"text,omitempty"`
	Critique *review.Critique `json:"critique,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type optionsOutput struct {
	Channels      []string `json:"channels"`
	Objectives    []string `json:"objectives"`
	Devices       []string `json:"devices"`
	AcceptedTypes []string `json:"acceptedTypes"`
}

// reviewer is satisfied by *review.Service.
type reviewer interface {
	Review(ctx context.Context, req review.Request) (*review.Review, error)
}

type reviewTools struct {
	service reviewer
}

func (t *reviewTools) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "review_creative",
		Description: "Critique ad creatives (images or videos) against platform best practices for the given campaign.",
	}, t.review)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "campaign_options",
		Description: "List the campaign channels, objectives and devices review_creative accepts.",
	}, t.options)
}

func (t *reviewTools) review(ctx context.Context, _ *mcp.CallToolRequest, in reviewInput) (*mcp.CallToolResult, reviewOutput, error) {
	if len(in.Paths) == 0 {
		return nil, reviewOutput{}, fmt.Errorf("paths must name at least one file")
	}
	assets := make([]creative.Asset, 0, len(in.Paths))
	for _, p := range in.Paths {
		a, err := creative.FromFile(p)
		if err != nil {
			return nil, reviewOutput{}, fmt.Errorf("load %s: %w", p, err)
		}
		assets = append(assets, a)
	}

	log.Info().Int("assets", len(assets)).Bool("combined", in.Combined).Msg("MCP review requested")
	rv, err := t.service.Review(ctx, review.Request{
		Assets: assets,
		Campaign: creative.Campaign{
			Channel:   in.Channel,
			Objective: in.Objective,
			Device:    in.Device,
		},
		Combined: in.Combined,
	})
	if err != nil {
		return nil, reviewOutput{}, err
	}
	return nil, toOutput(rv), nil
}

func (t *reviewTools) options(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, optionsOutput, error) {
	types := make([]string, 0, len(creative.AcceptedMIMETypes))
	for mt := range creative.AcceptedMIMETypes {
		types = append(types, mt)
	}
	slices.Sort(types)
	return nil, optionsOutput{
		Channels:      creative.Channels,
		Objectives:    creative.Objectives,
		Devices:       creative.Devices,
		AcceptedTypes: types,
	}, nil
}

func toOutput(rv *review.Review) reviewOutput {
	out := reviewOutput{Results: make([]reviewResult, 0, len(rv.Items)), Failed: rv.Failed()}
	for _, it := range rv.Items {
		r := reviewResult{Assets: it.Assets, OK: it.OK()}
		if it.OK() {
			r.Text = it.Text
			r.Critique = it.Critique
		} else {
			r.Error = it.Err.UserMessage()
		}
		out.Results = append(out.Results, r)
	}
	return out
}
