package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"mailagent/internal/llm"
	"mailagent/internal/model"
)

const responseSystemPromptFmt = `You are an email response writing assistant. Write a complete reply to the given email.

Tone: %s

The response must:
- Be concise (maximum 150 words)
- Address all key points in the original email
- Open with a salutation addressed to the sender
- Close with an appropriate sign-off signed "%s"
- Be ready to send as-is

Respond with the reply text only. No explanation, no subject line.`

const improveSystemPrompt = `You are an email response improvement assistant. Improve the draft response based on user feedback.

Keep the same tone and style but address the feedback provided.
Be concise and ready to send.

Respond with the improved response text only. No explanation.`

var toneInstructions = map[model.Tone]string{
	model.ToneFormal:  "Professional and formal, suitable for business contexts",
	model.ToneCasual:  "Casual and friendly, suitable for colleagues you know well",
	model.ToneNeutral: "Balanced, professional but approachable",
}

// promptBodyChars caps the quoted original body so a variant prompt
// stays inside the model's context window.
const promptBodyChars = 2000

// InferenceClient is the slice of the LLM client the generator needs.
type InferenceClient interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int64, temperature float64) (string, error)
}

// Generator produces reply drafts for classified messages. Stateless;
// drafts are persisted by the caller.
type Generator struct {
	llm       InferenceClient
	maxTokens int64
	ownerName string
	log       *slog.Logger
}

// New creates a Generator. ownerName is used as the signature in
// generated replies.
func New(inference InferenceClient, maxTokens int64, ownerName string, log *slog.Logger) *Generator {
	if ownerName == "" {
		ownerName = "Me"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{llm: inference, maxTokens: maxTokens, ownerName: ownerName, log: log}
}

// Generate produces variantCount drafts, one per tone, concurrently.
// Variants are independent, but a partial set would mislead the user
// into thinking generation fully succeeded, so any failure discards the
// whole batch and returns the error.
func (g *Generator) Generate(ctx context.Context, msg *model.Message, variantCount int) ([]model.Draft, error) {
	if variantCount < 1 || variantCount > len(model.GenerationTones) {
		return nil, fmt.Errorf("variant count must be between 1 and %d, got %d",
			len(model.GenerationTones), variantCount)
	}

	prompt := g.buildPrompt(msg)
	drafts := make([]model.Draft, variantCount)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < variantCount; i++ {
		tone := model.GenerationTones[i]
		eg.Go(func() error {
			system := fmt.Sprintf(responseSystemPromptFmt, toneInstructions[tone], g.ownerName)
			text, err := g.llm.Complete(egCtx, system, prompt, g.maxTokens, 0.7)
			if err != nil {
				return fmt.Errorf("generate %s variant for %s: %w", tone, msg.ID, err)
			}
			drafts[i] = model.Draft{
				MessageID: msg.ID,
				Tone:      tone,
				Content:   strings.TrimSpace(text),
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return drafts, nil
}

// Improve revises draft text according to free-text feedback. The result
// is opaque text with no parsing step; inference failures propagate to
// the caller.
func (g *Generator) Improve(ctx context.Context, msg *model.Message, draft, feedback string) (string, error) {
	body := llm.TruncateChars(msg.BodyText, 1000)

	prompt := fmt.Sprintf(`Original email:
From: %s
Subject: %s

%s

Current draft response:
%s

User feedback:
%s

Please improve the draft based on the feedback.`,
		msg.FromAddr, msg.Subject, body, draft, feedback)

	text, err := g.llm.Complete(ctx, improveSystemPrompt, prompt, g.maxTokens, 0.7)
	if err != nil {
		return "", fmt.Errorf("improve draft for %s: %w", msg.ID, err)
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) buildPrompt(msg *model.Message) string {
	body := msg.BodyText
	if body == "" {
		body = msg.Snippet
	}
	if len(body) > promptBodyChars {
		body = llm.TruncateChars(body, promptBodyChars) + "..."
	}

	from := msg.FromAddr
	if from == "" {
		from = "Unknown"
	}
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	return fmt.Sprintf("From: %s\nSubject: %s\nTo: %s\n\nEmail body:\n%s",
		from, subject, msg.ToAddr, body)
}
