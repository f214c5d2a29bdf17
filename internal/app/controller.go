package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
	"github.com/zenexasolutions/Fight/internal/logger"
	"github.com/zenexasolutions/Fight/internal/session"
)

const (
	DefaultScanDelay     = 3 * time.Second
	DefaultCallTimeout   = 90 * time.Second
	DefaultSettleBackoff = 200 * time.Millisecond

	settleAttempts = 3
)

// Listener observes every committed state.
type Listener func(sessionID string, state State)

type Options struct {
	// ScanDelay is how long the biometric scan takes.
	ScanDelay time.Duration
	// CallTimeout bounds every gateway call.
	CallTimeout time.Duration
	Scheduler   Scheduler
	NewID       func() string
	// CoinFlip decides whether a ref reply is also spoken.
	CoinFlip func() bool
	Listener Listener
	// SettleBackoff is the base delay between attempts to store a settlement.
	SettleBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.ScanDelay <= 0 {
		o.ScanDelay = DefaultScanDelay
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Scheduler == nil {
		o.Scheduler = WallClock()
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.CoinFlip == nil {
		o.CoinFlip = func() bool { return rand.Float64() > 0.5 }
	}
	if o.SettleBackoff <= 0 {
		o.SettleBackoff = DefaultSettleBackoff
	}
	return o
}

type scanTimer struct {
	generation int
	timer      Timer
}

// sessionEntry serializes one session and records which slots have work
// running in this process. It exists only while referenced.
type sessionEntry struct {
	mu      sync.Mutex
	refs    int
	running map[Slot]bool
}

// reconcile frees every slot of s that no work in this process owns.
func (e *sessionEntry) reconcile(s *State) {
	for slot := range s.InFlight {
		if !e.running[slot] {
			s.finish(slot)
		}
	}
	s.syncLoading()
}

func (e *sessionEntry) track(s State) {
	e.running = make(map[Slot]bool, len(s.InFlight))
	for slot, busy := range s.InFlight {
		if busy {
			e.running[slot] = true
		}
	}
}

// Controller drives Reduce for many sessions: it loads and saves state,
// serializes transitions per session and carries out effects.
type Controller struct {
	store   session.Store
	gateway ai.Gateway
	roster  *fighter.Roster
	sink    audio.Sink
	logger  *zap.Logger
	opts    Options
	tones   map[audio.Tone][]byte

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	timers   map[string]scanTimer
	closed   bool

	pending sync.WaitGroup
}

func NewController(store session.Store, gateway ai.Gateway, roster *fighter.Roster, sink audio.Sink, log *zap.Logger, opts Options) (*Controller, error) {
	if store == nil || gateway == nil || roster == nil {
		return nil, errors.New("store, gateway and roster are required")
	}
	if sink == nil {
		sink = audio.SinkFunc(func(context.Context, audio.Clip) error { return nil })
	}
	if log == nil {
		log = zap.NewNop()
	}

	tones := make(map[audio.Tone][]byte, 2)
	for _, t := range []audio.Tone{audio.ToneSwipe, audio.ToneMatch} {
		pcm, err := audio.Synthesize(t)
		if err != nil {
			return nil, err
		}
		wav, err := audio.EncodeWAV(pcm, audio.ToneSampleRate, 1)
		if err != nil {
			return nil, fmt.Errorf("encode %s tone: %w", t, err)
		}
		tones[t] = wav
	}

	return &Controller{
		store:   store,
		gateway: gateway,
		roster:  roster,
		sink:    sink,
		logger:  log,
		opts:    opts.withDefaults(),
		tones:    tones,
		sessions: make(map[string]*sessionEntry),
		timers:   make(map[string]scanTimer),
	}, nil
}

func (c *Controller) Roster() *fighter.Roster { return c.roster }

// Create starts a new session on the landing view.
func (c *Controller) Create(ctx context.Context) (string, State, error) {
	id := c.opts.NewID()
	state := NewState(c.roster.User())

	if err := c.save(ctx, id, state); err != nil {
		return "", State{}, err
	}

	c.logger.Debug("session created", zap.String(logger.FieldSession, id))
	c.publish(id, state)
	return id, state, nil
}

func (c *Controller) State(ctx context.Context, id string) (State, error) {
	e := c.acquire(id)
	defer c.release(id, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := c.load(ctx, id)
	if err != nil {
		return State{}, err
	}
	e.reconcile(&state)
	return state, nil
}

// Delete drops the session and any timer it owns.
func (c *Controller) Delete(ctx context.Context, id string) error {
	e := c.acquire(id)
	defer c.release(id, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := c.load(ctx, id); err != nil {
		return err
	}

	c.cancelScan(id)
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Dispatch applies action to the session and starts the resulting effects.
// Gateway work continues in the background after Dispatch returns; its
// results are fed back as further actions.
func (c *Controller) Dispatch(ctx context.Context, id string, action Action) (State, error) {
	e := c.acquire(id)
	defer c.release(id, e)

	state, effects, err := c.transition(ctx, id, e, action)
	if err != nil {
		return state, err
	}

	c.publish(id, state)

	for _, effect := range effects {
		c.run(ctx, id, effect)
	}

	return state, nil
}

func (c *Controller) transition(ctx context.Context, id string, e *sessionEntry, action Action) (State, []Effect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := c.load(ctx, id)
	if err != nil {
		return State{}, nil, err
	}
	e.reconcile(&current)

	next, effects, err := Reduce(current, c.roster, action)
	if err != nil {
		return current, nil, err
	}

	if err := c.save(ctx, id, next); err != nil {
		return current, nil, err
	}
	e.track(next)

	return next, effects, nil
}

// Wait blocks until every background effect started so far has settled.
// Pending scan timers are not waited for.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Close stops all timers and waits for background effects.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.timer.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	c.pending.Wait()
}

// acquire returns the entry of id, creating it on first use. Every acquire
// must be paired with a release.
func (c *Controller) acquire(id string) *sessionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.sessions[id]
	if !ok {
		e = &sessionEntry{}
		c.sessions[id] = e
	}
	e.refs++
	return e
}

func (c *Controller) release(id string, e *sessionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.refs--
	if e.refs == 0 && c.sessions[id] == e {
		delete(c.sessions, id)
	}
}

// abandon gives up slot after its settlement could not be stored.
func (c *Controller) abandon(e *sessionEntry, slot Slot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, slot)
}

func (c *Controller) load(ctx context.Context, id string) (State, error) {
	raw, err := c.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return State{}, fmt.Errorf("session %s: %w", id, err)
		}
		return State{}, fmt.Errorf("load session: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return state, nil
}

func (c *Controller) save(ctx context.Context, id string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := c.store.Save(ctx, id, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *Controller) publish(id string, state State) {
	if c.opts.Listener != nil {
		c.opts.Listener(id, state)
	}
}

func (c *Controller) run(ctx context.Context, id string, effect Effect) {
	log := logger.WithSession(c.logger, id)
	log.Debug("running effect", zap.String("effect", effect.Kind()))

	switch e := effect.(type) {
	case PlayTone:
		c.playTone(ctx, id, e.Tone)
	case ScheduleScan:
		c.scheduleScan(id, e.Generation)
	case CancelScan:
		c.cancelScan(id)
	case RequestMatchup:
		c.background(ctx, id, SlotSwipe, func(ctx context.Context) Action {
			return c.matchup(ctx, e)
		})
	case SearchVenues:
		c.background(ctx, id, SlotChat, func(ctx context.Context) Action {
			return VenuesSettled{Report: c.gateway.FindVenues(ctx, e.Query)}
		})
	case AskRef:
		c.background(ctx, id, SlotChat, func(ctx context.Context) Action {
			reply := c.gateway.StartRefChat(e.UserName).Send(ctx, e.Message)
			return RefReplySettled{Reply: reply, Speak: reply.Present() && c.opts.CoinFlip()}
		})
	case SpeakText:
		c.background(ctx, id, SlotVoice, func(ctx context.Context) Action {
			c.speak(ctx, id, e.Text)
			return SpeechSettled{}
		})
	default:
		log.Warn("unknown effect", zap.String("effect", effect.Kind()))
	}
}

// background runs call on a context detached from the caller's cancellation
// and dispatches the action it returns. The work owns slot until then.
func (c *Controller) background(ctx context.Context, id string, slot Slot, call func(ctx context.Context) Action) {
	e := c.acquire(id)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer c.release(id, e)

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
		action := call(callCtx)
		cancel()

		if !c.settle(context.WithoutCancel(ctx), id, action) {
			c.abandon(e, slot)
		}
	}()
}

// settle dispatches action, retrying failures that are not rejections by the
// reducer. It reports whether the action was applied.
func (c *Controller) settle(ctx context.Context, id string, action Action) bool {
	log := logger.WithSession(c.logger, id)

	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		if _, err = c.Dispatch(ctx, id, action); err == nil {
			return true
		}
		if !retryable(err) {
			break
		}
		if attempt < settleAttempts {
			log.Debug("retrying settlement", zap.String("action", action.Name()), zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(time.Duration(attempt) * c.opts.SettleBackoff)
		}
	}

	if errors.Is(err, session.ErrNotFound) {
		log.Debug("session gone before settlement", zap.String("action", action.Name()))
		return false
	}
	log.Warn("settlement rejected", zap.String("action", action.Name()), zap.Error(err))
	return false
}

func retryable(err error) bool {
	for _, target := range []error{session.ErrNotFound, ErrBusy, ErrInvalidTransition, ErrInvalidAction} {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}

func (c *Controller) matchup(ctx context.Context, e RequestMatchup) Action {
	var (
		wg       sync.WaitGroup
		analysis ai.Result[ai.Analysis]
		poster   ai.Result[ai.Poster]
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		analysis = c.gateway.AnalyzeMatchup(ctx, e.Challenger, e.Opponent)
	}()
	go func() {
		defer wg.Done()
		poster = c.gateway.GeneratePoster(ctx, e.Challenger, e.Opponent)
	}()
	wg.Wait()

	return MatchupSettled{
		MatchID:  c.opts.NewID(),
		Opponent: e.Opponent,
		Analysis: analysis,
		Poster:   poster,
	}
}

func (c *Controller) speak(ctx context.Context, id, text string) {
	log := logger.WithSession(c.logger, id)

	speech := c.gateway.Speak(ctx, text)
	if !speech.Present() {
		return
	}

	wav, err := audio.EncodeWAV(speech.Value.PCM, speech.Value.SampleRate, speech.Value.Channels)
	if err != nil {
		log.Warn("speech is not playable", zap.Error(err))
		return
	}

	clip := audio.Clip{ID: c.opts.NewID(), SessionID: id, Label: "ref_voice", WAV: wav}
	if err := c.sink.Play(ctx, clip); err != nil {
		log.Warn("speech playback failed", zap.Error(err))
	}
}

func (c *Controller) playTone(ctx context.Context, id string, tone audio.Tone) {
	wav, ok := c.tones[tone]
	if !ok {
		return
	}

	clip := audio.Clip{ID: c.opts.NewID(), SessionID: id, Label: string(tone), WAV: wav}
	if err := c.sink.Play(ctx, clip); err != nil {
		logger.WithSession(c.logger, id).Debug("tone playback failed", zap.String("tone", string(tone)), zap.Error(err))
	}
}

func (c *Controller) scheduleScan(id string, generation int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if prev, ok := c.timers[id]; ok {
		prev.timer.Stop()
	}

	timer := c.opts.Scheduler.AfterFunc(c.opts.ScanDelay, func() {
		c.mu.Lock()
		if t, ok := c.timers[id]; ok && t.generation == generation {
			delete(c.timers, id)
		}
		c.mu.Unlock()

		c.settle(context.Background(), id, ScanCompleted{Generation: generation})
	})
	c.timers[id] = scanTimer{generation: generation, timer: timer}
}

func (c *Controller) cancelScan(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.timer.Stop()
		delete(c.timers, id)
	}
}
