package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/zenexasolutions/Fight/internal/ai"
)

const (
	unknownVenue = "Unknown Venue"
	// placeholderURI marks grounding chunks without a usable link.
	placeholderURI = "#"
)

// FindVenues runs a Google Maps grounded search for gyms matching query.
func (g *Gateway) FindVenues(ctx context.Context, query string) ai.Result[ai.VenueReport] {
	model := g.models.Venues
	prompt := fill(venuesTemplate, "{{QUERY}}", strings.TrimSpace(query))
	g.logRequest(model, "venue_search", prompt)

	resp, err := g.gen.Generate(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
	})
	if err != nil {
		g.logFailure(model, "maps search failed", err)
		return ai.Fallback(ai.DefaultVenues(), err)
	}

	text := responseText(resp)
	g.logResponse(model, "venue_search", text)

	return ai.OK(ai.VenueReport{Text: text, Links: groundingLinks(resp)})
}

func groundingLinks(resp *genai.GenerateContentResponse) []ai.VenueLink {
	links := []ai.VenueLink{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return links
	}

	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return links
	}

	for _, chunk := range meta.GroundingChunks {
		link := ai.VenueLink{Title: unknownVenue, URI: placeholderURI}
		if chunk != nil && chunk.Maps != nil {
			if title := strings.TrimSpace(chunk.Maps.Title); title != "" {
				link.Title = title
			}
			if uri := strings.TrimSpace(chunk.Maps.URI); uri != "" {
				link.URI = uri
			}
		}
		if link.URI == placeholderURI {
			continue
		}
		links = append(links, link)
	}

	return links
}
