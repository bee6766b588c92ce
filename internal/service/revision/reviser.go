package revision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	llmprovider "github.com/haowjy/meridian-llm-go"
	"github.com/haowjy/meridian-llm-go/providers/anthropic"
	"github.com/haowjy/meridian-llm-go/providers/lorem"

	"folio/internal/domain/models/revision"
	revisionSvc "folio/internal/domain/services/revision"
)

const revisePrompt = `You are revising a document. Apply the request below to the document and
reply with the complete revised document only, without commentary.

Request:
%s

Document:
%s`

// NewProvider returns the LLM provider named by providerName
//
// Supported providers:
//   - "anthropic" - Claude models via Anthropic API
//   - "lorem" - Mock provider for development (no API key required)
func NewProvider(providerName, apiKey string) (llmprovider.Provider, error) {
	switch providerName {
	case "anthropic":
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		provider, err := anthropic.NewProvider(apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
		}
		return provider, nil
	case "lorem":
		return lorem.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}

// LLMReviser asks a language model for the revised payload
type LLMReviser struct {
	provider llmprovider.Provider
	model    string
}

// NewLLMReviser creates a reviser backed by provider
func NewLLMReviser(provider llmprovider.Provider, model string) *LLMReviser {
	return &LLMReviser{provider: provider, model: model}
}

// Revise sends the base payload and the request to the model and returns
// the text of the response
func (r *LLMReviser) Revise(ctx context.Context, in *revisionSvc.ReviseInput) ([]byte, error) {
	request := in.Content
	if ra, ok := in.Instruction.(revision.RevisionAttachment); ok && ra.Instructions != "" {
		request = strings.TrimSpace(request + "\n" + ra.Instructions)
	}
	prompt := fmt.Sprintf(revisePrompt, request, in.Base)

	resp, err := r.provider.GenerateResponse(ctx, &llmprovider.GenerateRequest{
		Messages: []llmprovider.Message{{
			Role: "user",
			Blocks: []*llmprovider.Block{{
				BlockType:   "text",
				Sequence:    0,
				TextContent: &prompt,
			}},
		}},
		Model: r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("generate revision: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Blocks {
		if block.BlockType == "text" && block.TextContent != nil {
			out.WriteString(*block.TextContent)
		}
	}
	if out.Len() == 0 {
		return nil, errors.New("model returned no text")
	}
	return []byte(out.String()), nil
}

// DirectReviser applies proposals that need no model: a revision that carries
// its own payload, or a suggestion whose original text is still present.
// Everything else goes to next.
type DirectReviser struct {
	next revisionSvc.Reviser
}

// NewDirectReviser wraps next
func NewDirectReviser(next revisionSvc.Reviser) *DirectReviser {
	return &DirectReviser{next: next}
}

// ErrSuggestionStale is returned when a suggestion's original text is no longer in the base
var ErrSuggestionStale = errors.New("suggested text no longer matches the document")

func (r *DirectReviser) Revise(ctx context.Context, in *revisionSvc.ReviseInput) ([]byte, error) {
	switch a := in.Instruction.(type) {
	case revision.RevisionAttachment:
		if a.ProposedPayload != nil {
			return a.ProposedPayload, nil
		}
	case revision.SuggestionAttachment:
		base := string(in.Base)
		if a.Original == "" || !strings.Contains(base, a.Original) {
			return nil, ErrSuggestionStale
		}
		return []byte(strings.Replace(base, a.Original, a.Replacement, 1)), nil
	}

	if r.next == nil {
		return nil, errors.New("no reviser configured for instruction-based revisions")
	}
	return r.next.Revise(ctx, in)
}
