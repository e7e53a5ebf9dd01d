package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrorPrefix marks finalized failure messages so the presentation layer can
// style them distinctly.
const ErrorPrefix = "Ошибка: "

const (
	// searchSuffix steers the model toward the search tool when search
	// grounding is requested for a non-empty user turn.
	searchSuffix = "\n\nИспользуй поиск Google для актуальной информации и укажи источники."

	quotaTemplate    = "Превышена квота запросов к модели. Подождите немного или отключите режим поиска."
	overloadTemplate = "Сервис перегружен. Повторите попытку позже."

	retryNotice  = "⏳ Сервис временно недоступен, повторная попытка через %d с..."
	switchNotice = "🔄 Квота исчерпана, переключаюсь на модель %s..."
)

// Orchestrator drives one streaming conversation turn against the remote
// model API: request shaping, incremental delivery, grounding extraction and
// the bounded retry-with-fallback policy.
type Orchestrator struct {
	streamer      Streamer
	retry         RetryConfig
	fallbackModel string
	logger        *log.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRetryConfig overrides the default retry configuration
func WithRetryConfig(config RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = config }
}

// WithFallbackModel sets the model switched to on the first quota error
// while search is enabled. Empty disables fallback switching.
func WithFallbackModel(model string) Option {
	return func(o *Orchestrator) { o.fallbackModel = model }
}

// WithLogger overrides the default logger
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator over the given streamer
func NewOrchestrator(streamer Streamer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		streamer: streamer,
		retry:    DefaultRetryConfig(),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request describes one conversation turn to stream
type Request struct {
	// History holds the prior conversation. Thinking placeholders and
	// empty messages are dropped before anything is sent upstream.
	History []HistoryMessage

	// Text is the new user turn
	Text string

	// Attachments are attached to the new turn only, never to history
	Attachments []Attachment

	// UseSearch enables search-augmented generation
	UseSearch bool

	// Model is the initially requested model identifier
	Model string

	// OnChunk receives the full accumulated text after every fragment,
	// replacement semantics: each call supersedes the previous one.
	OnChunk func(text string)

	// OnGrounding receives cited sources whenever a fragment carries any
	// that survive filtering.
	OnGrounding func(sources []Source)
}

// StreamResponse runs the turn to completion: it returns nil once the stream
// is exhausted, and a non-nil error when the turn ultimately failed. Failures
// are reported to the user through OnChunk with ErrorPrefix before the error
// is returned, so callers only need the error for logging and for telling a
// handled failure apart from one that never reached the stream.
func (o *Orchestrator) StreamResponse(ctx context.Context, req Request) error {
	turns, err := buildTurns(req)
	if err != nil {
		o.emit(req, ErrorPrefix+err.Error())
		return err
	}

	model := req.Model
	switched := false

	for attempt := 0; ; attempt++ {
		var acc strings.Builder

		streamErr := o.streamer.Stream(ctx, GenerateRequest{
			Model:  model,
			Turns:  turns,
			Search: req.UseSearch,
		}, func(fragment Fragment) error {
			if fragment.Text != "" {
				acc.WriteString(fragment.Text)
				o.emit(req, acc.String())
			}
			if req.OnGrounding != nil {
				if sources := FilterSources(fragment.Sources); len(sources) > 0 {
					req.OnGrounding(sources)
				}
			}
			return nil
		})

		if streamErr == nil {
			return nil
		}

		kind := ClassifyError(streamErr)
		if kind == KindTerminal || attempt >= o.retry.MaxRetries {
			o.logger.Error("model stream failed",
				"model", model, "attempt", attempt+1, "kind", kind.String(), "err", streamErr)
			o.emit(req, ErrorPrefix+failureMessage(kind, streamErr))
			return fmt.Errorf("stream failed after %d attempt(s): %w", attempt+1, streamErr)
		}

		delay := BackoffDelay(attempt, o.retry)

		// Quota errors under search burn through a stricter tool-call
		// quota; switch to the fallback model once, never back.
		if kind == KindQuota && req.UseSearch && !switched &&
			o.fallbackModel != "" && o.fallbackModel != model {
			model = o.fallbackModel
			switched = true
			o.emit(req, fmt.Sprintf(switchNotice, model))
		} else {
			o.emit(req, fmt.Sprintf(retryNotice, int(delay.Seconds())))
		}

		o.logger.Warn("retrying model stream",
			"model", model, "attempt", attempt+1, "kind", kind.String(), "delay", delay)

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) emit(req Request, text string) {
	if req.OnChunk != nil {
		req.OnChunk(text)
	}
}

// buildTurns shapes the outgoing request: filtered history turns, then one
// final user turn of attachment parts followed by a text part.
func buildTurns(req Request) ([]Turn, error) {
	turns := make([]Turn, 0, len(req.History)+1)

	for _, m := range req.History {
		if m.Thinking || strings.TrimSpace(m.Text) == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Parts: []Part{{Text: m.Text}}})
	}

	parts := make([]Part, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		data, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			return nil, fmt.Errorf("attachment %q has an invalid payload: %w", att.Name, err)
		}
		parts = append(parts, Part{Data: data, MIMEType: att.MIMEType})
	}

	text := req.Text
	if req.UseSearch && strings.TrimSpace(text) != "" {
		text += searchSuffix
	}
	parts = append(parts, Part{Text: text})

	return append(turns, Turn{Role: RoleUser, Parts: parts}), nil
}

// FilterSources drops sources missing a URI or a title
func FilterSources(sources []Source) []Source {
	filtered := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.URI == "" || s.Title == "" {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func failureMessage(kind ErrorKind, err error) string {
	switch kind {
	case KindQuota:
		return quotaTemplate
	case KindOverload:
		return overloadTemplate
	default:
		return ExtractAPIErrorMessage(err.Error())
	}
}
