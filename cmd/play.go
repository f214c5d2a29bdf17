package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/app"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
	"github.com/zenexasolutions/Fight/internal/session"
)

const (
	PromptType    = "Type to the ref"
	PromptReplay  = "Replay the ref"
	PromptRefresh = "Refresh"
	PromptQuit    = "Quit"
)

var errQuit = errors.New("quit requested")

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play Brutal Match in the terminal",
	Run: func(_ *cobra.Command, _ []string) {
		play()
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func play() {
	ctx := context.Background()

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	gateway, err := newGateway(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building ai gateway", zap.Error(err))
	}

	roster := fighter.DefaultRoster()
	ctrl, err := app.NewController(session.NewMemory(config.Session.TTL), gateway, roster, terminalSink(logger), logger, app.Options{
		ScanDelay:   config.Game.ScanDelay,
		CallTimeout: config.AI.CallTimeout,
	})
	if err != nil {
		logger.Fatal("building controller", zap.Error(err))
	}
	defer ctrl.Close()

	id, state, err := ctrl.Create(ctx)
	if err != nil {
		logger.Fatal("creating a session", zap.Error(err))
	}

	for {
		screen := app.Render(state, roster)
		fmt.Print(formatScreen(screen))

		action, err := choose(screen)
		if err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		for _, a := range expand(action) {
			if _, err := ctrl.Dispatch(ctx, id, a); err != nil {
				logger.Warn("action rejected", zap.String("action", a.Name()), zap.Error(err))
				break
			}
		}

		ctrl.Wait()
		state, err = awaitScan(ctx, ctrl, id, config.Game.ScanDelay)
		if err != nil {
			logger.Fatal("reading session", zap.Error(err))
		}
	}
}

// awaitScan returns the session state, first letting a running biometric scan finish.
func awaitScan(ctx context.Context, ctrl *app.Controller, id string, delay time.Duration) (app.State, error) {
	state, err := ctrl.State(ctx, id)
	if err != nil {
		return state, err
	}
	if state.View != app.ViewOnboarding || state.OnboardingStep != app.StepScanning {
		return state, nil
	}

	fmt.Print(formatScreen(app.Render(state, ctrl.Roster())))

	deadline := time.Now().Add(delay + time.Second)
	for state.OnboardingStep == app.StepScanning && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if state, err = ctrl.State(ctx, id); err != nil {
			return state, err
		}
	}
	return state, nil
}

// choose asks for the next action. A nil action just redraws.
func choose(screen app.Screen) (app.Action, error) {
	items := make([]string, 0, len(screen.Controls)+4)
	actions := make(map[string]app.Action, len(screen.Controls))

	if screen.Modal != nil {
		items = append(items, "SCHEDULE BOUT", "KEEP HUNTING")
		actions["SCHEDULE BOUT"] = app.CloseMatchModal{ToRef: true}
		actions["KEEP HUNTING"] = app.CloseMatchModal{}
	} else {
		for _, c := range screen.Controls {
			action, ok := controlAction(c.Action)
			if !ok || c.Action == "chat" {
				continue
			}
			items = append(items, c.Label)
			actions[c.Label] = action
		}
		if screen.Chat != nil {
			items = append(items, screen.Chat.QuickReplies...)
			items = append(items, PromptType, PromptReplay)
		}
	}
	items = append(items, PromptRefresh, PromptQuit)

	sel := promptui.Select{Label: screen.Title, Items: items, Size: len(items)}
	_, picked, err := sel.Run()
	if err != nil {
		return nil, err
	}

	switch picked {
	case PromptQuit:
		return nil, errQuit
	case PromptRefresh:
		return nil, nil
	case PromptReplay:
		return replayAction(screen.Chat), nil
	case PromptType:
		text, err := (&promptui.Prompt{Label: "YOU"}).Run()
		if err != nil {
			return nil, err
		}
		return sendChat{text: text}, nil
	}

	if screen.Chat != nil {
		for _, q := range screen.Chat.QuickReplies {
			if picked == q {
				return sendChat{text: q}, nil
			}
		}
	}

	return actions[picked], nil
}

// sendChat sets the input and sends it in one step.
type sendChat struct{ text string }

func (sendChat) Name() string { return "send_chat" }

// expand turns a picked action into what the controller understands.
func expand(action app.Action) []app.Action {
	switch a := action.(type) {
	case nil:
		return nil
	case sendChat:
		return []app.Action{app.SetChatInput{Text: a.text}, app.SendChat{}}
	default:
		return []app.Action{action}
	}
}

// controlAction maps a screen control to its action.
func controlAction(name string) (app.Action, bool) {
	kind, arg, _ := strings.Cut(name, ":")
	switch kind {
	case "view":
		return app.Navigate{View: app.View(arg)}, true
	case "swipe":
		return app.Swipe{Direction: app.Direction(arg)}, true
	case "onboarding":
		if arg == "scan" {
			return app.BeginScan{}, true
		}
		return app.FinishOnboarding{}, true
	case "chat":
		return app.SendChat{}, true
	default:
		return nil, false
	}
}

// replayAction speaks the newest ref message, or the greeting when there is none.
func replayAction(chat *app.ChatPanel) app.Action {
	if chat != nil {
		for i := len(chat.Transcript) - 1; i >= 0; i-- {
			if chat.Transcript[i].Role == fighter.RoleModel {
				return app.SpeakMessage{Index: i}
			}
		}
	}
	return app.SpeakMessage{Index: -1}
}

func formatScreen(screen app.Screen) string {
	var b strings.Builder

	b.WriteString("\n=== " + screen.Title + " ===\n")
	for _, line := range screen.Lines {
		b.WriteString(line + "\n")
	}

	if f := screen.Fighter; f != nil {
		verified := ""
		if f.Verified {
			verified = " [VERIFIED]"
		}
		fmt.Fprintf(&b, "%s%s\n%d | %s | %s | %dy\n%q\nW %d  L %d  INTENSITY %d%%\n",
			f.Name, verified, f.Age, f.WeightClass, f.Style, f.ExperienceYears, f.Bio,
			f.Stats.Wins, f.Stats.Losses, f.Stats.Brutality)
	}

	for _, m := range screen.Matches {
		fmt.Fprintf(&b, "- %s (%s) %s\n", m.Opponent, m.Style, strings.ToUpper(string(m.Status)))
	}

	if c := screen.Chat; c != nil {
		b.WriteString("THE REF: " + c.Greeting + "\n")
		for _, msg := range c.Transcript {
			who := "THE REF"
			if msg.Role == fighter.RoleUser {
				who = "YOU"
			}
			b.WriteString(who + ": " + msg.Text() + "\n")
		}
		writeLinks(&b, c.Links)
		if c.Transmitting {
			b.WriteString("TRANSMITTING...\n")
		}
	}

	if m := screen.Modal; m != nil {
		fmt.Fprintf(&b, "\n*** MATCH FOUND ***\n%s VS %s\n", m.Champion, m.Challenger)
		if m.Analysis != nil {
			fmt.Fprintf(&b, "AI INTENSITY FORECAST: %g%%\n%q\n", m.Analysis.IntensityScore, m.Analysis.Analysis)
		}
		if m.PosterURL != "" {
			b.WriteString("(poster generated)\n")
		}
	}

	if screen.Busy {
		b.WriteString("...\n")
	}
	return b.String()
}

func writeLinks(b *strings.Builder, links []ai.VenueLink) {
	if len(links) == 0 {
		return
	}
	b.WriteString("Scouted Locations:\n")
	for _, l := range links {
		fmt.Fprintf(b, "  * %s %s\n", l.Title, l.URI)
	}
}

// terminalSink logs clips instead of playing them.
func terminalSink(logger *zap.Logger) audio.Sink {
	return audio.SinkFunc(func(_ context.Context, clip audio.Clip) error {
		logger.Debug("audio clip", zap.String("label", clip.Label), zap.Int("bytes", len(clip.WAV)))
		return nil
	})
}
