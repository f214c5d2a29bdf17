package audio

import (
	"context"
	"sync"
)

// Clip is a playable WAV file produced for one session.
type Clip struct {
	ID        string
	SessionID string
	Label     string
	WAV       []byte
}

// Sink is the audio output boundary.
type Sink interface {
	Play(ctx context.Context, clip Clip) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, clip Clip) error

func (f SinkFunc) Play(ctx context.Context, clip Clip) error { return f(ctx, clip) }

const defaultLibrarySize = 64

// Library keeps the most recent clips so clients can fetch them after being notified.
type Library struct {
	mu    sync.Mutex
	size  int
	order []string
	clips map[string]Clip
}

func NewLibrary(size int) *Library {
	if size <= 0 {
		size = defaultLibrarySize
	}
	return &Library{size: size, clips: make(map[string]Clip, size)}
}

func (l *Library) Put(clip Clip) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clips[clip.ID]; !ok {
		l.order = append(l.order, clip.ID)
	}
	l.clips[clip.ID] = clip

	for len(l.order) > l.size {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.clips, oldest)
	}
}

// Get returns the clip only if it belongs to sessionID.
func (l *Library) Get(sessionID, clipID string) (Clip, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clip, ok := l.clips[clipID]
	if !ok || clip.SessionID != sessionID {
		return Clip{}, false
	}
	return clip, true
}

func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clips)
}
