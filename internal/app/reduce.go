package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
)

var (
	// ErrBusy rejects an action whose slot already has an operation outstanding.
	ErrBusy = errors.New("operation already in progress")
	// ErrInvalidTransition rejects an action the current view or step does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidAction     = errors.New("invalid action")
)

// RefGreeting is what The Ref says before any message was exchanged.
const RefGreeting = "What do you want, rookie? You here to scout a location or just talk? I know all the pits in this city."

var venueKeywords = []string{"location", "gym", "near"}

// Reduce computes the state following action. It never performs I/O; anything
// that needs the outside world is returned as an Effect. The input state is not
// modified. A rejected action returns the input state unchanged and an error.
func Reduce(s State, roster *fighter.Roster, action Action) (State, []Effect, error) {
	next := s.clone()

	var (
		effects []Effect
		err     error
	)

	switch a := action.(type) {
	case Navigate:
		effects, err = next.navigate(a.View)
	case Swipe:
		effects, err = next.swipe(roster, a.Direction)
	case MatchupSettled:
		effects = next.matchupSettled(a)
	case CloseMatchModal:
		next.MatchModalOpen = false
		if a.ToRef {
			effects, err = next.navigate(ViewRef)
		}
	case SetChatInput:
		next.ChatInput = a.Text
	case SendChat:
		effects, err = next.sendChat()
	case VenuesSettled:
		next.Transcript = append(next.Transcript, fighter.NewMessage(fighter.RoleModel, a.Report.Value.Text))
		next.VenueLinks = append([]ai.VenueLink{}, a.Report.Value.Links...)
		next.finish(SlotChat)
	case RefReplySettled:
		effects = next.refReplySettled(a)
	case SpeakMessage:
		effects, err = next.speakMessage(a.Index)
	case SpeechSettled:
		next.finish(SlotVoice)
	case BeginScan:
		effects, err = next.beginScan()
	case ScanCompleted:
		if next.View == ViewOnboarding && next.OnboardingStep == StepScanning && a.Generation == next.ScanGeneration {
			next.OnboardingStep = StepGranted
		}
	case FinishOnboarding:
		if next.View != ViewOnboarding || next.OnboardingStep != StepGranted {
			err = fmt.Errorf("finish onboarding at step %d: %w", next.OnboardingStep, ErrInvalidTransition)
			break
		}
		effects, err = next.navigate(ViewSwiping)
	case nil:
		err = fmt.Errorf("nil action: %w", ErrInvalidAction)
	default:
		err = fmt.Errorf("unknown action %q: %w", action.Name(), ErrInvalidAction)
	}

	if err != nil {
		return s, nil, err
	}
	return next, effects, nil
}

func (s *State) navigate(view View) ([]Effect, error) {
	if !view.IsValid() {
		return nil, fmt.Errorf("unknown view %q: %w", view, ErrInvalidAction)
	}

	var effects []Effect
	if s.View == ViewOnboarding && s.OnboardingStep == StepScanning && view != ViewOnboarding {
		// Invalidate the pending scan so a late timer cannot advance a view that is gone.
		s.ScanGeneration++
		effects = append(effects, CancelScan{})
	}

	if view == ViewOnboarding && s.View != ViewOnboarding {
		s.OnboardingStep = StepVerify
	}

	s.View = view
	return effects, nil
}

func (s *State) swipe(roster *fighter.Roster, dir Direction) ([]Effect, error) {
	if !dir.IsValid() {
		return nil, fmt.Errorf("swipe direction %q: %w", dir, ErrInvalidAction)
	}
	if s.View != ViewSwiping {
		return nil, fmt.Errorf("swipe from %s view: %w", s.View, ErrInvalidTransition)
	}
	if s.Busy(SlotSwipe) {
		return nil, fmt.Errorf("swipe: %w", ErrBusy)
	}

	opponent := roster.Opponent(s.SwipeIndex)
	s.SwipeIndex = roster.Next(s.SwipeIndex)

	effects := []Effect{PlayTone{Tone: audio.ToneSwipe}}
	if dir == SwipeRight {
		s.begin(SlotSwipe)
		s.PosterURL = ""
		effects = append(effects, RequestMatchup{Challenger: s.User, Opponent: opponent})
	}

	return effects, nil
}

func (s *State) matchupSettled(a MatchupSettled) []Effect {
	analysis := a.Analysis.Value
	s.MatchAnalysis = &analysis

	s.PosterURL = ""
	if a.Poster.Present() {
		s.PosterURL = a.Poster.Value.DataURI
	}

	s.Matches = append(s.Matches, fighter.Match{
		ID:       a.MatchID,
		FighterA: s.User,
		FighterB: a.Opponent,
		Status:   fighter.MatchPending,
	})
	s.MatchModalOpen = true
	s.finish(SlotSwipe)

	return []Effect{PlayTone{Tone: audio.ToneMatch}}
}

func (s *State) sendChat() ([]Effect, error) {
	text := strings.TrimSpace(s.ChatInput)
	if text == "" {
		return nil, nil
	}
	if s.View != ViewRef {
		return nil, fmt.Errorf("chat from %s view: %w", s.View, ErrInvalidTransition)
	}
	if s.Busy(SlotChat) {
		return nil, fmt.Errorf("send chat: %w", ErrBusy)
	}

	s.Transcript = append(s.Transcript, fighter.NewMessage(fighter.RoleUser, text))
	s.ChatInput = ""
	s.VenueLinks = []ai.VenueLink{}
	s.begin(SlotChat)

	if wantsVenues(text) {
		return []Effect{SearchVenues{Query: text}}, nil
	}
	return []Effect{AskRef{UserName: s.User.Name, Message: text}}, nil
}

func wantsVenues(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range venueKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *State) refReplySettled(a RefReplySettled) []Effect {
	s.finish(SlotChat)
	if !a.Reply.Present() {
		return nil
	}

	s.Transcript = append(s.Transcript, fighter.NewMessage(fighter.RoleModel, a.Reply.Value))

	if !a.Speak || s.Busy(SlotVoice) || strings.TrimSpace(a.Reply.Value) == "" {
		return nil
	}
	s.begin(SlotVoice)
	return []Effect{SpeakText{Text: a.Reply.Value}}
}

func (s *State) speakMessage(index int) ([]Effect, error) {
	text := RefGreeting
	if index >= 0 {
		if index >= len(s.Transcript) || s.Transcript[index].Role != fighter.RoleModel {
			return nil, fmt.Errorf("no model message at %d: %w", index, ErrInvalidAction)
		}
		text = s.Transcript[index].Text()
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message %d is empty: %w", index, ErrInvalidAction)
	}
	if s.Busy(SlotVoice) {
		return nil, fmt.Errorf("speak: %w", ErrBusy)
	}

	s.begin(SlotVoice)
	return []Effect{SpeakText{Text: text}}, nil
}

func (s *State) beginScan() ([]Effect, error) {
	if s.View != ViewOnboarding || s.OnboardingStep != StepVerify {
		return nil, fmt.Errorf("begin scan at step %d: %w", s.OnboardingStep, ErrInvalidTransition)
	}

	s.OnboardingStep = StepScanning
	s.ScanGeneration++
	return []Effect{ScheduleScan{Generation: s.ScanGeneration}}, nil
}
