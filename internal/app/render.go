package app

import (
	"slices"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/fighter"
)

// Quick replies offered under the ref chat input.
const (
	QuickScoutGyms = "Find gyms nearby"
	QuickSchedule  = "Schedule my match"
)

const emptyFightCard = "No active bouts. Get back in the pit."

// Screen is a render of one view, ready to be painted by a client.
type Screen struct {
	View     View             `json:"view"`
	Title    string           `json:"title"`
	Lines    []string         `json:"lines,omitempty"`
	Busy     bool             `json:"busy"`
	Fighter  *fighter.Profile `json:"fighter,omitempty"`
	Matches  []MatchCard      `json:"matches,omitempty"`
	Chat     *ChatPanel       `json:"chat,omitempty"`
	Modal    *MatchModal      `json:"modal,omitempty"`
	Controls []Control        `json:"controls,omitempty"`
}

// Control is something the user can do from the screen.
type Control struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

type MatchCard struct {
	ID       string              `json:"id"`
	Opponent string              `json:"opponent"`
	Style    fighter.Style       `json:"style"`
	Status   fighter.MatchStatus `json:"status"`
}

type ChatPanel struct {
	Greeting     string                `json:"greeting"`
	Transcript   []fighter.ChatMessage `json:"transcript"`
	Links        []ai.VenueLink        `json:"links,omitempty"`
	Input        string                `json:"input"`
	Transmitting bool                  `json:"transmitting"`
	QuickReplies []string              `json:"quickReplies"`
}

type MatchModal struct {
	Champion   string       `json:"champion"`
	Challenger string       `json:"challenger"`
	Analysis   *ai.Analysis `json:"analysis,omitempty"`
	PosterURL  string       `json:"posterUrl,omitempty"`
}

// Render builds the screen for the current view of s.
func Render(s State, roster *fighter.Roster) Screen {
	var screen Screen

	switch s.View {
	case ViewOnboarding:
		screen = renderOnboarding(s)
	case ViewSwiping:
		opponent := roster.Opponent(s.SwipeIndex)
		screen = Screen{
			Title:   "TARGETS ACQUIRED",
			Fighter: &opponent,
			Controls: []Control{
				{Label: "PASS", Action: "swipe:left"},
				{Label: "FIGHT", Action: "swipe:right"},
				{Label: "FIGHT CARD", Action: "view:matches"},
				{Label: "DOSSIER", Action: "view:profile"},
			},
		}
	case ViewMatches:
		screen = renderMatches(s)
	case ViewRef:
		screen = Screen{
			Title: "THE REF",
			Chat: &ChatPanel{
				Greeting:     RefGreeting,
				Transcript:   slices.Clone(s.Transcript),
				Links:        slices.Clone(s.VenueLinks),
				Input:        s.ChatInput,
				Transmitting: s.Busy(SlotChat),
				QuickReplies: []string{QuickScoutGyms, QuickSchedule},
			},
			Controls: []Control{
				{Label: "SEND", Action: "chat"},
				{Label: "BACK", Action: "view:swiping"},
			},
		}
	case ViewProfile:
		user := s.User
		screen = Screen{
			Title:   "MY DOSSIER",
			Fighter: &user,
			Controls: []Control{
				{Label: "BACK", Action: "view:swiping"},
				{Label: "DISCONNECT", Action: "view:landing"},
			},
		}
	default:
		screen = Screen{
			Title: "BRUTAL MATCH",
			Lines: []string{`"The elite digital arena for combatants. No mercy. Just glory."`},
			Controls: []Control{
				{Label: "INITIATE PROTOCOL", Action: "view:onboarding"},
			},
		}
	}

	screen.View = s.View
	if screen.View == "" {
		screen.View = ViewLanding
	}
	screen.Busy = s.Loading
	if s.MatchModalOpen {
		screen.Modal = renderModal(s)
	}

	return screen
}

func renderOnboarding(s State) Screen {
	switch s.OnboardingStep {
	case StepScanning:
		return Screen{
			Title: "ANALYZING BIOMETRICS",
			Lines: []string{
				"> SCANNING LIMB EXTENSION...",
				"> AGGRESSION SCORE: 88%",
				"> CLASS IDENTIFIED: STRIKER",
				"> VERIFYING AUTHENTICITY...",
			},
		}
	case StepGranted:
		return Screen{
			Title:    "ACCESS GRANTED",
			Lines:    []string{"You have been ranked as an ELITE UNDERGROUND COMBATANT."},
			Controls: []Control{{Label: "START MATCHING", Action: "onboarding:finish"}},
		}
	default:
		return Screen{
			Title:    "VERIFICATION REQUIRED",
			Lines:    []string{"To enter the pit, we must verify your fighting capability. Upload or record a 10s shadowboxing clip."},
			Controls: []Control{{Label: "OPEN CAMERA", Action: "onboarding:scan"}},
		}
	}
}

func renderMatches(s State) Screen {
	screen := Screen{
		Title:    "FIGHT CARD",
		Controls: []Control{{Label: "BACK", Action: "view:swiping"}},
	}

	if len(s.Matches) == 0 {
		screen.Lines = []string{emptyFightCard}
		return screen
	}

	for _, m := range s.Matches {
		screen.Matches = append(screen.Matches, MatchCard{
			ID:       m.ID,
			Opponent: m.FighterB.Name,
			Style:    m.FighterB.Style,
			Status:   m.Status,
		})
	}
	return screen
}

func renderModal(s State) *MatchModal {
	modal := &MatchModal{
		Champion:   s.User.Nickname(),
		Challenger: "OPPONENT",
		PosterURL:  s.PosterURL,
	}
	if n := len(s.Matches); n > 0 {
		modal.Challenger = s.Matches[n-1].FighterB.Nickname()
	}
	if s.MatchAnalysis != nil {
		a := *s.MatchAnalysis
		modal.Analysis = &a
	}
	return modal
}
