// Package drafts rewrites researcher-supplied text through the model,
// subject to the compliance gate. Creative rewriting is the one feature
// whose instruction can be silently replaced rather than blocked.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/compliance"
)

const systemPrompt = "You are an academic writing assistant for technology transfer offices. Rewrite the supplied draft exactly as instructed. Return only the rewritten text, no preamble."

type LLMCaller interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey)}, nil
}

func (a *AnthropicCaller) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0.3),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type Rewriter struct {
	caller  LLMCaller
	gate    *compliance.Gate
	rec     *audit.Recorder
	timeout time.Duration
}

func NewRewriter(caller LLMCaller, gate *compliance.Gate, rec *audit.Recorder) *Rewriter {
	return &Rewriter{caller: caller, gate: gate, rec: rec, timeout: 60 * time.Second}
}

type RewriteResult struct {
	ProjectID             string `json:"project_id,omitempty"`
	Rewritten             string `json:"rewritten"`
	Instruction           string `json:"instruction_applied"`
	InstructionOverridden bool   `json:"instruction_overridden"`
}

// Rewrite runs the draft through the model with the caller's
// instruction. In compliance mode the instruction is replaced with the
// safe clarity-only variant and the result reports the substitution.
func (r *Rewriter) Rewrite(ctx context.Context, projectID, draft, instruction string) (RewriteResult, error) {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return RewriteResult{}, errors.New("draft text is empty")
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = "Improve the draft."
	}

	effective, overridden := r.gate.Transform(compliance.FeatureDraftOptimizationCreative, instruction)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Instruction: %s\n\nDraft:\n%s", effective, draft)
	out, err := r.caller.GenerateText(ctx, prompt)
	if err != nil {
		return RewriteResult{}, fmt.Errorf("draft rewrite failed: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return RewriteResult{}, errors.New("draft rewrite failed: empty response")
	}

	r.rec.Append(audit.ActionDraftOptimized, "Project", projectID, "", map[string]any{
		"instruction_overridden": overridden,
		"draft_chars":            len(draft),
	})

	return RewriteResult{
		ProjectID:             projectID,
		Rewritten:             out,
		Instruction:           effective,
		InstructionOverridden: overridden,
	}, nil
}
