package app

import (
	"slices"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/fighter"
)

type View string

const (
	ViewLanding    View = "landing"
	ViewOnboarding View = "onboarding"
	ViewSwiping    View = "swiping"
	ViewMatches    View = "matches"
	ViewRef        View = "ref"
	ViewProfile    View = "profile"
)

func (v View) IsValid() bool {
	switch v {
	case ViewLanding, ViewOnboarding, ViewSwiping, ViewMatches, ViewRef, ViewProfile:
		return true
	default:
		return false
	}
}

// Slot identifies an asynchronous operation that may be outstanding.
type Slot string

const (
	SlotSwipe Slot = "swipe"
	SlotChat  Slot = "chat"
	SlotVoice Slot = "voice"
)

type OnboardingStep int

const (
	StepVerify OnboardingStep = iota
	StepScanning
	StepGranted
)

// State is everything one session of the app knows.
type State struct {
	View           View                  `json:"view"`
	User           fighter.Profile       `json:"currentUser"`
	SwipeIndex     int                   `json:"swipeIndex"`
	Matches        []fighter.Match       `json:"matches"`
	Transcript     []fighter.ChatMessage `json:"transcript"`
	ChatInput      string                `json:"chatInput"`
	Loading        bool                  `json:"isLoading"`
	InFlight       map[Slot]bool         `json:"inFlight,omitempty"`
	MatchModalOpen bool                  `json:"isMatchModalOpen"`
	MatchAnalysis  *ai.Analysis          `json:"matchAnalysis,omitempty"`
	PosterURL      string                `json:"aiPosterUrl,omitempty"`
	OnboardingStep OnboardingStep        `json:"onboardingStep"`
	ScanGeneration int                   `json:"scanGeneration"`
	VenueLinks     []ai.VenueLink        `json:"groundingLinks"`
}

func NewState(user fighter.Profile) State {
	return State{
		View:       ViewLanding,
		User:       user,
		Matches:    []fighter.Match{},
		Transcript: []fighter.ChatMessage{},
		VenueLinks: []ai.VenueLink{},
	}
}

func (s State) Busy(slot Slot) bool { return s.InFlight[slot] }

func (s *State) begin(slot Slot) {
	if s.InFlight == nil {
		s.InFlight = make(map[Slot]bool)
	}
	s.InFlight[slot] = true
	s.syncLoading()
}

func (s *State) finish(slot Slot) {
	delete(s.InFlight, slot)
	if len(s.InFlight) == 0 {
		s.InFlight = nil
	}
	s.syncLoading()
}

// Loading mirrors the spinner of the swipe and chat controls; voice playback does not block them.
func (s *State) syncLoading() {
	s.Loading = s.InFlight[SlotSwipe] || s.InFlight[SlotChat]
}

// clone returns a copy that shares no mutable memory with s.
func (s State) clone() State {
	c := s
	c.Matches = slices.Clone(s.Matches)
	c.Transcript = make([]fighter.ChatMessage, len(s.Transcript))
	for i, msg := range s.Transcript {
		c.Transcript[i] = fighter.ChatMessage{Role: msg.Role, Parts: slices.Clone(msg.Parts)}
	}
	c.VenueLinks = slices.Clone(s.VenueLinks)
	if s.InFlight != nil {
		c.InFlight = make(map[Slot]bool, len(s.InFlight))
		for k, v := range s.InFlight {
			c.InFlight[k] = v
		}
	}
	if s.MatchAnalysis != nil {
		a := *s.MatchAnalysis
		c.MatchAnalysis = &a
	}
	return c
}
