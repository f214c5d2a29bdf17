package ai

import (
	"context"

	"github.com/zenexasolutions/Fight/internal/fighter"
)

// Analysis is the matchmaking verdict for a pair of fighters.
type Analysis struct {
	IntensityScore float64 `json:"intensityScore"`
	Analysis       string  `json:"analysis"`
}

// Poster is a generated fight poster ready to be put in an <img> tag.
type Poster struct {
	DataURI  string `json:"dataUri"`
	MIMEType string `json:"mimeType"`
}

// VenueLink is a grounded (title, URI) pair for a real-world venue.
type VenueLink struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type VenueReport struct {
	Text  string      `json:"text"`
	Links []VenueLink `json:"links"`
}

// Speech is raw little-endian PCM16 audio.
type Speech struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Gateway is the boundary to the generative-AI service. Implementations never
// return errors: failures are reported through Result.
type Gateway interface {
	AnalyzeMatchup(ctx context.Context, challenger, opponent fighter.Profile) Result[Analysis]
	GeneratePoster(ctx context.Context, challenger, opponent fighter.Profile) Result[Poster]
	FindVenues(ctx context.Context, query string) Result[VenueReport]
	Speak(ctx context.Context, text string) Result[Speech]
	StartRefChat(userName string) RefChat
}

// RefChat is a conversation with The Ref.
type RefChat interface {
	Send(ctx context.Context, message string) Result[string]
}

// Capability describes one gateway feature for status reporting.
type Capability struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}
