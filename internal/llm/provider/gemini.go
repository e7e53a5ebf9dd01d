// Package provider implements the remote model API over the official
// Google GenAI SDK.
package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/ekomarov/gemchat/internal/llm"
)

// Options configures the Gemini streamer
type Options struct {
	APIKey          string
	SystemPrompt    string
	Temperature     float32
	MaxOutputTokens int32
}

// Gemini implements llm.Streamer using the official Google GenAI SDK
type Gemini struct {
	client  *genai.Client
	options Options
}

// NewGemini creates a Gemini streamer for the AI Studio backend
func NewGemini(ctx context.Context, options Options) (*Gemini, error) {
	if options.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if options.MaxOutputTokens <= 0 {
		options.MaxOutputTokens = 8192
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  options.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, options: options}, nil
}

// Stream implements llm.Streamer. Fragments are delivered to fn strictly in
// arrival order; SDK errors surface as llm.StatusError so classification can
// rely on status codes rather than message text.
func (g *Gemini) Stream(ctx context.Context, req llm.GenerateRequest, fn func(llm.Fragment) error) error {
	contents := convertTurns(req.Turns)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.options.Temperature),
		MaxOutputTokens: g.options.MaxOutputTokens,
	}
	if g.options.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: g.options.SystemPrompt}},
		}
	}
	if req.Search {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	for result, err := range g.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return wrapError(err)
		}

		fragment := extractFragment(result)
		if fragment.Text == "" && len(fragment.Sources) == 0 {
			continue
		}
		if err := fn(fragment); err != nil {
			return err
		}
	}

	return nil
}

// convertTurns converts conversation turns to the SDK content format
func convertTurns(turns []llm.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.Data != nil {
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{
						MIMEType: p.MIMEType,
						Data:     p.Data,
					},
				})
				continue
			}
			parts = append(parts, &genai.Part{Text: p.Text})
		}
		contents = append(contents, &genai.Content{
			Role:  string(turn.Role),
			Parts: parts,
		})
	}
	return contents
}

// extractFragment pulls the text delta and any grounding sources out of one
// streamed response
func extractFragment(result *genai.GenerateContentResponse) llm.Fragment {
	var fragment llm.Fragment
	if len(result.Candidates) == 0 {
		return fragment
	}

	candidate := result.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				fragment.Text += part.Text
			}
		}
	}

	if gm := candidate.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			fragment.Sources = append(fragment.Sources, llm.Source{
				Title: chunk.Web.Title,
				URI:   chunk.Web.URI,
			})
		}
	}

	return fragment
}

// wrapError converts SDK errors into llm.StatusError
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Err:     err,
		}
	}
	return err
}
