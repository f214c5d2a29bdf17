package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/genai"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/fighter"
)

var errNoImage = errors.New("response contains no inline image")

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intensityScore": {Type: genai.TypeNumber},
		"analysis":       {Type: genai.TypeString},
	},
	Required: []string{"intensityScore", "analysis"},
}

type analysisPayload struct {
	IntensityScore float64 `mapstructure:"intensityScore"`
	Analysis       string  `mapstructure:"analysis"`
}

// AnalyzeMatchup asks for a brutality prediction and a one-line analysis of the pairing.
func (g *Gateway) AnalyzeMatchup(ctx context.Context, challenger, opponent fighter.Profile) ai.Result[ai.Analysis] {
	model := g.models.Analysis
	prompt := fill(matchupTemplate, fighterPairs(challenger, opponent)...)
	g.logRequest(model, "matchup_analysis", prompt)

	resp, err := g.gen.Generate(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema,
	})
	if err != nil {
		g.logFailure(model, "matchmaking analysis failed", err)
		return ai.Fallback(ai.DefaultAnalysis(), err)
	}

	raw := responseText(resp)
	g.logResponse(model, "matchup_analysis", raw)

	analysis, err := parseAnalysis(raw)
	if err != nil {
		g.logFailure(model, "matchmaking analysis failed", err)
		return ai.Fallback(ai.DefaultAnalysis(), err)
	}

	return ai.OK(analysis)
}

func parseAnalysis(raw string) (ai.Analysis, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return ai.Analysis{}, errors.New("empty analysis response")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return ai.Analysis{}, fmt.Errorf("parse analysis response: %w", err)
	}

	var payload analysisPayload
	if err := mapstructure.WeakDecode(data, &payload); err != nil {
		return ai.Analysis{}, fmt.Errorf("decode analysis response: %w", err)
	}

	payload.Analysis = strings.TrimSpace(payload.Analysis)
	if payload.Analysis == "" {
		return ai.Analysis{}, errors.New("analysis response misses the analysis text")
	}

	return ai.Analysis{IntensityScore: payload.IntensityScore, Analysis: payload.Analysis}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// GeneratePoster renders a 16:9 poster of the two fighters and returns it as a data URI.
func (g *Gateway) GeneratePoster(ctx context.Context, challenger, opponent fighter.Profile) ai.Result[ai.Poster] {
	model := g.models.Poster
	prompt := fill(posterTemplate, fighterPairs(challenger, opponent)...)
	g.logRequest(model, "fight_poster", prompt)

	resp, err := g.gen.Generate(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: posterAspectRatio},
	})
	if err != nil {
		g.logFailure(model, "poster generation failed", err)
		return ai.Absent[ai.Poster](err)
	}

	for _, part := range firstContent(resp) {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}

		mimeType := strings.TrimSpace(part.InlineData.MIMEType)
		if mimeType == "" {
			mimeType = "image/png"
		}

		return ai.OK(ai.Poster{
			DataURI:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data),
			MIMEType: mimeType,
		})
	}

	g.logFailure(model, "poster generation failed", errNoImage)
	return ai.Absent[ai.Poster](errNoImage)
}
