package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"mailagent/internal/llm"
	"mailagent/internal/model"
)

// fakeInference answers based on the tone instruction in the system
// prompt, so concurrent variant calls stay deterministic.
type fakeInference struct {
	failSubstring string
}

func (f *fakeInference) Complete(ctx context.Context, system, prompt string, maxTokens int64, temperature float64) (string, error) {
	if f.failSubstring != "" && strings.Contains(system, f.failSubstring) {
		return "", fmt.Errorf("variant call: %w", llm.ErrUnavailable)
	}
	switch {
	case strings.Contains(system, "formal"):
		return "Dear colleague,\n\nNoted.\n\nRegards,\nAlex", nil
	case strings.Contains(system, "Casual"):
		return "Hey!\n\nGot it.\n\nCheers,\nAlex", nil
	default:
		return "Hello,\n\nThanks for the note.\n\nBest,\nAlex", nil
	}
}

func testMsg() *model.Message {
	return &model.Message{
		ID:       "m1",
		FromAddr: "sender@example.com",
		Subject:  "Q3 report",
		BodyText: "Could you send the Q3 numbers?",
	}
}

func TestGenerateOneDraftPerTone(t *testing.T) {
	g := New(&fakeInference{}, 1500, "Alex", nil)

	drafts, err := g.Generate(context.Background(), testMsg(), 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("got %d drafts, want 3", len(drafts))
	}

	for i, want := range model.GenerationTones {
		if drafts[i].Tone != want {
			t.Errorf("drafts[%d].Tone = %q, want %q", i, drafts[i].Tone, want)
		}
		if drafts[i].MessageID != "m1" {
			t.Errorf("drafts[%d].MessageID = %q, want m1", i, drafts[i].MessageID)
		}
		if drafts[i].Content == "" {
			t.Errorf("drafts[%d] has empty content", i)
		}
	}
}

func TestGenerateDiscardsBatchOnAnyFailure(t *testing.T) {
	// Two of three variants succeed; the batch still comes back empty.
	g := New(&fakeInference{failSubstring: "Casual"}, 1500, "Alex", nil)

	drafts, err := g.Generate(context.Background(), testMsg(), 3)
	if err == nil {
		t.Fatal("expected error when one variant fails")
	}
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
	if drafts != nil {
		t.Errorf("got %d drafts, want none", len(drafts))
	}
}

func TestGenerateVariantCountBounds(t *testing.T) {
	g := New(&fakeInference{}, 1500, "Alex", nil)

	for _, count := range []int{0, -1, 4} {
		if _, err := g.Generate(context.Background(), testMsg(), count); err == nil {
			t.Errorf("Generate with count %d: expected error", count)
		}
	}

	drafts, err := g.Generate(context.Background(), testMsg(), 1)
	if err != nil {
		t.Fatalf("Generate with count 1: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Tone != model.ToneFormal {
		t.Errorf("single variant should use the first tone, got %+v", drafts)
	}
}

func TestImprove(t *testing.T) {
	g := New(&fakeInference{}, 1500, "Alex", nil)

	text, err := g.Improve(context.Background(), testMsg(), "Dear colleague, noted.", "make it warmer")
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if text == "" {
		t.Error("Improve returned empty text")
	}
}

// promptRecorder captures the prompt for inspection; safe for the
// single-call Improve path only.
type promptRecorder struct {
	prompt string
}

func (p *promptRecorder) Complete(ctx context.Context, system, prompt string, maxTokens int64, temperature float64) (string, error) {
	p.prompt = prompt
	return "ok", nil
}

func TestPromptsTruncateOnRuneBoundary(t *testing.T) {
	msg := testMsg()
	msg.BodyText = strings.Repeat("日", 4000)

	g := New(&fakeInference{}, 1500, "Alex", nil)
	if prompt := g.buildPrompt(msg); !utf8.ValidString(prompt) {
		t.Error("variant prompt contains invalid UTF-8 after truncation")
	}

	rec := &promptRecorder{}
	g = New(rec, 1500, "Alex", nil)
	if _, err := g.Improve(context.Background(), msg, "draft", "shorter"); err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if !utf8.ValidString(rec.prompt) {
		t.Error("improve prompt contains invalid UTF-8 after truncation")
	}
}

func TestImprovePropagatesInferenceError(t *testing.T) {
	g := New(&fakeInference{failSubstring: "improvement"}, 1500, "Alex", nil)

	_, err := g.Improve(context.Background(), testMsg(), "draft", "feedback")
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}
