package gemini

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/fighter"
	"github.com/zenexasolutions/Fight/internal/logger"
	"github.com/zenexasolutions/Fight/internal/utils"
)

const (
	provider            = "gemini"
	defaultMaxLogLength = 200
	defaultVoice        = "Charon"
	posterAspectRatio   = "16:9"
)

//go:embed prompts/matchup.md
var matchupTemplate string

//go:embed prompts/poster.md
var posterTemplate string

//go:embed prompts/venues.md
var venuesTemplate string

//go:embed prompts/ref.md
var refTemplate string

//go:embed prompts/voice.md
var voiceTemplate string

type generator interface {
	Generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Converse(ctx context.Context, model, system, message string) (string, error)
}

// Models selects the model used for each capability.
type Models struct {
	Analysis string
	Poster   string
	Venues   string
	Speech   string
	Chat     string
}

func DefaultModels() Models {
	return Models{
		Analysis: "gemini-3-flash-preview",
		Poster:   "gemini-2.5-flash-image",
		Venues:   "gemini-2.5-flash",
		Speech:   "gemini-2.5-flash-preview-tts",
		Chat:     "gemini-3-flash-preview",
	}
}

// withDefaults fills empty entries from DefaultModels.
func (m Models) withDefaults() Models {
	d := DefaultModels()
	pick := func(v, def string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return def
	}
	return Models{
		Analysis: pick(m.Analysis, d.Analysis),
		Poster:   pick(m.Poster, d.Poster),
		Venues:   pick(m.Venues, d.Venues),
		Speech:   pick(m.Speech, d.Speech),
		Chat:     pick(m.Chat, d.Chat),
	}
}

type Options struct {
	Models       Models
	Voice        string
	MaxLogLength int
}

// Gateway implements ai.Gateway on top of a Generator.
type Gateway struct {
	gen       generator
	models    Models
	voice     string
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Gateway = (*Gateway)(nil)

func NewGateway(gen generator, opts Options, log *zap.Logger) *Gateway {
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLength
	}
	if strings.TrimSpace(opts.Voice) == "" {
		opts.Voice = defaultVoice
	}

	return &Gateway{
		gen:       gen,
		models:    opts.Models.withDefaults(),
		voice:     strings.TrimSpace(opts.Voice),
		logger:    logger.WithFields(log),
		maxLogLen: opts.MaxLogLength,
	}
}

// Describe lists every capability with the model serving it.
func (g *Gateway) Describe() []ai.Capability {
	return []ai.Capability{
		{Name: "matchup_analysis", Model: g.models.Analysis},
		{Name: "fight_poster", Model: g.models.Poster},
		{Name: "venue_search", Model: g.models.Venues},
		{Name: "ref_voice", Model: g.models.Speech},
		{Name: "ref_chat", Model: g.models.Chat},
	}
}

// modelLogger tags entries with the provider and the model serving the call.
func (g *Gateway) modelLogger(model string) *zap.Logger {
	return logger.WithCommonFields(g.logger, provider, model)
}

func (g *Gateway) logRequest(model, kind, prompt string) {
	g.modelLogger(model).Debug("gemini request",
		zap.String("kind", kind),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)
}

func (g *Gateway) logResponse(model, kind, text string) {
	g.modelLogger(model).Debug("gemini response",
		zap.String("kind", kind),
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, g.maxLogLen)),
	)
}

func (g *Gateway) logFailure(model, msg string, err error) {
	g.modelLogger(model).Warn(msg, zap.Error(err))
}

func fill(template string, pairs ...string) string {
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

func fighterPairs(challenger, opponent fighter.Profile) []string {
	return []string{
		"{{CHALLENGER_NAME}}", challenger.Name,
		"{{CHALLENGER_STYLE}}", string(challenger.Style),
		"{{CHALLENGER_WEIGHT}}", challenger.WeightClass,
		"{{CHALLENGER_EXPERIENCE}}", strconv.Itoa(challenger.ExperienceYears),
		"{{OPPONENT_NAME}}", opponent.Name,
		"{{OPPONENT_STYLE}}", string(opponent.Style),
		"{{OPPONENT_WEIGHT}}", opponent.WeightClass,
		"{{OPPONENT_EXPERIENCE}}", strconv.Itoa(opponent.ExperienceYears),
	}
}
