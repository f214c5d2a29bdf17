package app

import (
	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
)

type Direction string

const (
	SwipeLeft  Direction = "left"
	SwipeRight Direction = "right"
)

func (d Direction) IsValid() bool { return d == SwipeLeft || d == SwipeRight }

// Action is a user intent or the settlement of an earlier effect.
type Action interface {
	Name() string
}

type Navigate struct{ View View }

type Swipe struct{ Direction Direction }

// MatchupSettled carries both halves of the right-swipe request.
type MatchupSettled struct {
	MatchID  string
	Opponent fighter.Profile
	Analysis ai.Result[ai.Analysis]
	Poster   ai.Result[ai.Poster]
}

type CloseMatchModal struct{ ToRef bool }

type SetChatInput struct{ Text string }

type SendChat struct{}

type VenuesSettled struct{ Report ai.Result[ai.VenueReport] }

type RefReplySettled struct {
	Reply ai.Result[string]
	Speak bool
}

// SpeakMessage replays a model transcript entry; a negative index speaks the greeting.
type SpeakMessage struct{ Index int }

type SpeechSettled struct{}

type BeginScan struct{}

type ScanCompleted struct{ Generation int }

type FinishOnboarding struct{}

func (Navigate) Name() string         { return "navigate" }
func (Swipe) Name() string            { return "swipe" }
func (MatchupSettled) Name() string   { return "matchup_settled" }
func (CloseMatchModal) Name() string  { return "close_match_modal" }
func (SetChatInput) Name() string     { return "set_chat_input" }
func (SendChat) Name() string         { return "send_chat" }
func (VenuesSettled) Name() string    { return "venues_settled" }
func (RefReplySettled) Name() string  { return "ref_reply_settled" }
func (SpeakMessage) Name() string     { return "speak_message" }
func (SpeechSettled) Name() string    { return "speech_settled" }
func (BeginScan) Name() string        { return "begin_scan" }
func (ScanCompleted) Name() string    { return "scan_completed" }
func (FinishOnboarding) Name() string { return "finish_onboarding" }

// Effect is I/O requested by the reducer and carried out by the Controller.
type Effect interface {
	Kind() string
}

type RequestMatchup struct {
	Challenger fighter.Profile
	Opponent   fighter.Profile
}

type SearchVenues struct{ Query string }

type AskRef struct {
	UserName string
	Message  string
}

type SpeakText struct{ Text string }

type PlayTone struct{ Tone audio.Tone }

type ScheduleScan struct{ Generation int }

type CancelScan struct{}

func (RequestMatchup) Kind() string { return "request_matchup" }
func (SearchVenues) Kind() string   { return "search_venues" }
func (AskRef) Kind() string         { return "ask_ref" }
func (SpeakText) Kind() string      { return "speak_text" }
func (PlayTone) Kind() string       { return "play_tone" }
func (ScheduleScan) Kind() string   { return "schedule_scan" }
func (CancelScan) Kind() string     { return "cancel_scan" }
