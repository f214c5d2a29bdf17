package gemini

import (
	"context"
	"errors"
	"mime"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/zenexasolutions/Fight/internal/ai"
)

const (
	defaultSampleRate = 24000
	audioModality     = "AUDIO"
)

var errNoAudio = errors.New("response contains no audio data")

// Speak synthesizes text in The Ref's voice.
func (g *Gateway) Speak(ctx context.Context, text string) ai.Result[ai.Speech] {
	model := g.models.Speech
	text = strings.TrimSpace(text)
	if text == "" {
		return ai.Absent[ai.Speech](errors.New("nothing to say"))
	}

	prompt := fill(voiceTemplate, "{{TEXT}}", text)
	g.logRequest(model, "ref_voice", prompt)

	resp, err := g.gen.Generate(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{audioModality},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		g.logFailure(model, "tts generation failed", err)
		return ai.Absent[ai.Speech](err)
	}

	for _, part := range firstContent(resp) {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return ai.OK(ai.Speech{
			PCM:        part.InlineData.Data,
			SampleRate: sampleRate(part.InlineData.MIMEType),
			Channels:   1,
		})
	}

	g.logFailure(model, "tts generation failed", errNoAudio)
	return ai.Absent[ai.Speech](errNoAudio)
}

// sampleRate reads the rate parameter of an "audio/L16;codec=pcm;rate=24000" MIME type.
func sampleRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return defaultSampleRate
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return defaultSampleRate
	}
	return rate
}
