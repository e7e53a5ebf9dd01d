// Package controller wires user actions to the session store and the
// streaming orchestrator.
package controller

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ekomarov/gemchat/internal/llm"
	"github.com/ekomarov/gemchat/internal/session"
)

// continuePrompt asks the model to pick up a truncated reply
const continuePrompt = "Продолжи свой предыдущий ответ с того места, где он оборвался."

// Responder streams one conversation turn
type Responder interface {
	StreamResponse(ctx context.Context, req llm.Request) error
}

// Controller owns the send / continue / new / delete actions. Turns against
// the same session are serialized with a per-session lock, turns against
// different sessions may run concurrently.
type Controller struct {
	store     *session.Store
	responder Responder
	logger    *log.Logger

	model     string
	useSearch bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// OnMessageUpdated, when set, fires after every patch of a streaming
	// message so a frontend can redraw. Called from the streaming
	// goroutine.
	OnMessageUpdated func(sessionID, messageID string)
}

// New creates a controller. model is the initially selected model
// identifier.
func New(store *session.Store, responder Responder, model string, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		store:     store,
		responder: responder,
		logger:    logger,
		model:     model,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Model returns the currently selected model identifier
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel switches the model for subsequent turns and persists the choice
func (c *Controller) SetModel(ctx context.Context, model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	c.store.SetModel(ctx, model)
}

// SearchEnabled reports whether search grounding is on
func (c *Controller) SearchEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useSearch
}

// SetSearchEnabled toggles search grounding for subsequent turns
func (c *Controller) SetSearchEnabled(on bool) {
	c.mu.Lock()
	c.useSearch = on
	c.mu.Unlock()
}

// CreateSession starts a fresh session and makes it active
func (c *Controller) CreateSession() *session.ChatSession {
	return c.store.Create()
}

// DeleteSession removes a session, keeping the store's never-empty invariant
func (c *Controller) DeleteSession(id string) error {
	return c.store.Delete(id)
}

// SendMessage appends the user message and a thinking placeholder, then
// streams the model reply into the placeholder. It blocks until the turn
// finishes. The returned error is for logging; user-visible failure text has
// already been written into the message.
func (c *Controller) SendMessage(ctx context.Context, sessionID, text string, attachments []session.Attachment) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history, err := c.store.History(sessionID)
	if err != nil {
		return err
	}

	userMsg := session.NewMessage(session.RoleUser, text)
	userMsg.Attachments = attachments
	if err := c.store.AppendMessage(sessionID, userMsg); err != nil {
		return err
	}
	if len(history) == 0 && strings.TrimSpace(text) != "" {
		if err := c.store.SetTitle(sessionID, session.DeriveTitle(text)); err != nil {
			c.logger.Warn("failed to set session title", "error", err)
		}
	}

	return c.stream(ctx, sessionID, history, text, attachments)
}

// ContinueGeneration asks the model to extend its previous reply. It is a
// send with the fixed continuation prompt as the new user turn, so every
// model message stays preceded by the user message that triggered it.
func (c *Controller) ContinueGeneration(ctx context.Context, sessionID string) error {
	return c.SendMessage(ctx, sessionID, continuePrompt, nil)
}

// stream runs one turn against the responder, patching a fresh placeholder
// message as chunks arrive. Callers hold the session lock.
func (c *Controller) stream(ctx context.Context, sessionID string, history []*session.Message, text string, attachments []session.Attachment) error {
	placeholder := session.NewMessage(session.RoleModel, "")
	placeholder.Thinking = true
	if err := c.store.AppendMessage(sessionID, placeholder); err != nil {
		return err
	}
	c.notify(sessionID, placeholder.ID)

	req := llm.Request{
		History:     toHistory(history),
		Text:        text,
		Attachments: toAttachments(attachments),
		UseSearch:   c.SearchEnabled(),
		Model:       c.Model(),
		OnChunk: func(chunk string) {
			c.patch(sessionID, placeholder.ID, func(m *session.Message) {
				m.Text = chunk
				m.Thinking = false
			})
		},
		OnGrounding: func(sources []llm.Source) {
			c.patch(sessionID, placeholder.ID, func(m *session.Message) {
				m.Sources = toSources(sources)
			})
		},
	}

	err := c.responder.StreamResponse(ctx, req)
	if err != nil {
		c.logger.Error("turn failed", "session", sessionID, "error", err)
	}

	// The orchestrator reports classified failures through OnChunk. A
	// placeholder still thinking here means the failure never reached the
	// stream machinery, so finalize it ourselves.
	c.patch(sessionID, placeholder.ID, func(m *session.Message) {
		if m.Thinking {
			if err != nil {
				m.Text = llm.ErrorPrefix + err.Error()
			}
			m.Thinking = false
		}
	})
	return err
}

func (c *Controller) patch(sessionID, messageID string, fn func(*session.Message)) {
	if err := c.store.UpdateMessage(sessionID, messageID, fn); err != nil {
		c.logger.Warn("failed to patch message", "session", sessionID, "error", err)
		return
	}
	c.notify(sessionID, messageID)
}

func (c *Controller) notify(sessionID, messageID string) {
	if c.OnMessageUpdated != nil {
		c.OnMessageUpdated(sessionID, messageID)
	}
}

func (c *Controller) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

func toHistory(messages []*session.Message) []llm.HistoryMessage {
	out := make([]llm.HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, llm.HistoryMessage{
			Role:     llm.Role(msg.Role),
			Text:     msg.Text,
			Thinking: msg.Thinking,
		})
	}
	return out
}

func toAttachments(attachments []session.Attachment) []llm.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]llm.Attachment, 0, len(attachments))
	for _, att := range attachments {
		out = append(out, llm.Attachment{
			Name:     att.Name,
			MIMEType: att.MIMEType,
			Data:     att.Data,
		})
	}
	return out
}

func toSources(sources []llm.Source) []session.GroundingSource {
	out := make([]session.GroundingSource, 0, len(sources))
	for _, src := range sources {
		out = append(out, session.GroundingSource{Title: src.Title, URI: src.URI})
	}
	return out
}
