package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = originalSleep }()

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-3-flash-preview", nil, tempErr)
	chats.enqueue("gemini-3-flash-preview", &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "retry ok"}}},
		}},
	}, nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-3-flash-preview",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	output, err := g.Converse(context.Background(), "", "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	for _, call := range chats.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != "message" {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = originalSleep }()

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-3-flash-preview", nil, tempErr)
	chats.enqueue("gemini-3-flash-preview", nil, tempErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-3-flash-preview",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	_, err := g.Converse(context.Background(), "", "sys", "msg")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	chats := newFakeChatCreator()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	chats.enqueue("gemini-3-flash-preview", nil, quotaErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-3-flash-preview",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	_, err := g.Converse(context.Background(), "", "sys", "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

type fakeModels struct {
	mu        sync.Mutex
	responses []fakeChatResponse
	calls     int
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res.resp, res.err
}

func TestGenerateRetriesOnUnavailable(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = originalSleep }()

	models := &fakeModels{responses: []fakeChatResponse{
		{err: genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}},
		{resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "second time"}}},
			}},
		}},
	}}

	g := &Generator{models: models, model: "gemini-3-flash-preview", maxRetries: 3, logger: zap.NewNop()}

	resp, err := g.Generate(context.Background(), "", genai.Text("hello"), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := responseText(resp); got != "second time" {
		t.Fatalf("unexpected text: %q", got)
	}
	if models.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.calls)
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{responses: []fakeChatResponse{
		{err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
	}}

	g := &Generator{models: models, model: "gemini-3-flash-preview", maxRetries: 3, logger: zap.NewNop()}

	if _, err := g.Generate(context.Background(), "", genai.Text("hello"), nil); err == nil {
		t.Fatal("expected error")
	}
	if models.calls != 1 {
		t.Fatalf("expected a single call, got %d", models.calls)
	}
}

func TestGenerateRejectsEmptyContents(t *testing.T) {
	g := &Generator{models: &fakeModels{}, model: "m", maxRetries: 1}
	if _, err := g.Generate(context.Background(), "", nil, nil); err == nil {
		t.Fatal("expected error for empty contents")
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retry     bool
		wantDelay time.Duration
	}{
		{
			name:      "server error backs off",
			err:       genai.APIError{Code: http.StatusInternalServerError},
			retry:     true,
			wantDelay: baseBackoff,
		},
		{
			name:      "short quota hint from details",
			err:       genai.APIError{Code: http.StatusTooManyRequests, Details: []map[string]any{{"retryDelay": "5s"}}},
			retry:     true,
			wantDelay: 5 * time.Second,
		},
		{
			name:  "long quota hint from message",
			err:   genai.APIError{Code: http.StatusTooManyRequests, Message: "retry in 45s"},
			retry: false,
		},
		{
			name:      "quota without hint",
			err:       genai.APIError{Code: http.StatusTooManyRequests},
			retry:     true,
			wantDelay: baseBackoff,
		},
		{
			name:  "not found",
			err:   genai.APIError{Code: http.StatusNotFound},
			retry: false,
		},
		{
			name:  "canceled",
			err:   context.Canceled,
			retry: false,
		},
		{
			name:  "plain error",
			err:   errors.New("boom"),
			retry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			delay, retry := retryDelay(tt.err, 0)
			if retry != tt.retry {
				t.Fatalf("expected retry=%v, got %v", tt.retry, retry)
			}
			if retry && delay != tt.wantDelay {
				t.Fatalf("expected delay %v, got %v", tt.wantDelay, delay)
			}
		})
	}
}
