package chat

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/ekomarov/gemchat/internal/controller"
	"github.com/ekomarov/gemchat/internal/llm"
	"github.com/ekomarov/gemchat/internal/markdown"
	"github.com/ekomarov/gemchat/internal/session"
	"github.com/ekomarov/gemchat/internal/storage"
)

type memBlobStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memBlobStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *memBlobStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memBlobStore) Close() error { return nil }

type fakeResponder struct {
	chunks []string
}

func (f *fakeResponder) StreamResponse(_ context.Context, req llm.Request) error {
	for _, chunk := range f.chunks {
		req.OnChunk(chunk)
	}
	return nil
}

func newTestChat(t *testing.T, responder controller.Responder, input string) (*Chat, *session.Store, *bytes.Buffer) {
	t.Helper()
	store := session.NewStore(&memBlobStore{data: make(map[string]string)}, log.New(io.Discard))
	store.Load(t.Context())
	t.Cleanup(store.Close)

	ctrl := controller.New(store, responder, "gemini-2.5-flash", log.New(io.Discard))
	renderer, err := markdown.NewRenderer(nil)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	out := &bytes.Buffer{}
	return New(ctrl, store, renderer, strings.NewReader(input), out), store, out
}

func TestRunSendsMessageAndPrintsDeltas(t *testing.T) {
	responder := &fakeResponder{chunks: []string{"При", "Привет!"}}
	chat, store, out := newTestChat(t, responder, "привет\n/exit\n")

	if err := chat.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// cumulative chunks must print once, as deltas
	if got := strings.Count(out.String(), "При"); got < 1 {
		t.Errorf("streamed text missing from output: %q", out.String())
	}
	if strings.Contains(out.String(), "ПриПривет") {
		t.Errorf("cumulative chunk printed twice: %q", out.String())
	}

	history, _ := store.History(store.Active().ID)
	if len(history) != 2 {
		t.Fatalf("expected one exchange, got %d messages", len(history))
	}
}

func TestCommandNewAndList(t *testing.T) {
	chat, store, out := newTestChat(t, &fakeResponder{}, "/new\n/list\n/exit\n")

	if err := chat.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.Sessions()) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(store.Sessions()))
	}
	if !strings.Contains(out.String(), "* 1.") {
		t.Errorf("active session not marked in list: %q", out.String())
	}
}

func TestCommandSwitchAndDelete(t *testing.T) {
	chat, store, _ := newTestChat(t, &fakeResponder{}, "/new\n/switch 2\n/delete 1\n/exit\n")

	if err := chat.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.Sessions()) != 1 {
		t.Fatalf("expected 1 session, got %d", len(store.Sessions()))
	}
	if store.Active() == nil {
		t.Fatal("an active session must remain")
	}
}

func TestCommandSearchToggle(t *testing.T) {
	chat, _, out := newTestChat(t, &fakeResponder{}, "/search on\n/search off\n/exit\n")

	if err := chat.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "включён") || !strings.Contains(out.String(), "выключен") {
		t.Errorf("search toggle feedback missing: %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	chat, _, out := newTestChat(t, &fakeResponder{}, "/bogus\n/exit\n")

	if err := chat.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Неизвестная команда") {
		t.Errorf("missing unknown-command notice: %q", out.String())
	}
}
