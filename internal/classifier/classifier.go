package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"mailagent/internal/llm"
	"mailagent/internal/model"
)

const classifySystemPrompt = `You are an email classification assistant. Analyze the email and return ONLY pure JSON, without markdown and without backticks.

Importance levels:
- high: Urgent or time-sensitive matters, requests from managers/directors, deadlines within 48 hours, immediate action required
- medium: Work-related questions, meeting requests, client communications, important but not urgent
- low: Newsletters, promotional content, automated notifications, CC emails with no action required, casual conversations

Categories:
- professional: Work-related emails, clients, projects, meetings
- personal: Personal emails from friends, family
- newsletter: Newsletters, mailing lists, subscriptions
- notification: Automated notifications, system alerts, receipts
- urgent: Urgent requests with deadlines, time-sensitive issues
- commercial: Sales emails, promotions, marketing
- administrative: Invoices, contracts, administrative documents

The summary must be 2-3 sentences maximum, factual and brief, covering the main topic, key dates and any action required. Write it in the same language as the email.

Format:
{"importance":"...","category":"...","summary":"..."}

IMPORTANT: Respond with valid JSON only. No explanation.`

// promptBodyTokens caps how much of the body goes into the
// classification prompt; responses have their own, larger budget.
const promptBodyTokens = 5000

// InferenceClient is the slice of the LLM client the classifier needs.
type InferenceClient interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int64, temperature float64) (string, error)
}

// Classifier assigns importance, category and summary to messages. It is
// a stateless transformer; results are written back through the store by
// the caller.
type Classifier struct {
	llm       InferenceClient
	maxTokens int64
	log       *slog.Logger
}

// New creates a Classifier. maxTokens is the classification output
// budget, distinct from the response-generation budget.
func New(inference InferenceClient, maxTokens int64, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{llm: inference, maxTokens: maxTokens, log: log}
}

type rawResult struct {
	Importance string `json:"importance"`
	Category   string `json:"category"`
	Summary    string `json:"summary"`
}

// Classify builds one structured prompt and parses the result. A
// malformed response degrades to deterministic defaults and still yields
// a complete classification; an unreachable model server is an error the
// sync batch records, unless a bulk-sender rule can classify the message
// without inference. The sender override always wins over parsed output.
func (c *Classifier) Classify(ctx context.Context, msg *model.Message) (model.Classification, error) {
	text, err := c.llm.Complete(ctx, classifySystemPrompt, c.buildPrompt(msg), c.maxTokens, 0.3)
	if err != nil {
		if rule, ok := MatchBulkSender(msg.FromAddr); ok {
			c.log.Info("inference unavailable, classified by sender rule",
				"id", msg.ID, "rule", rule.Name)
			return model.Classification{
				Importance: rule.Importance,
				Category:   rule.Category,
			}, nil
		}
		return model.Classification{}, fmt.Errorf("classify %s: %w", msg.ID, err)
	}

	parsed, err := parseResult(text)
	if err != nil {
		c.log.Warn("unparseable classification, using defaults", "id", msg.ID, "error", err)
		parsed = rawResult{}
	}

	cls := c.normalize(msg.ID, parsed)
	return ApplySenderOverride(msg.FromAddr, cls), nil
}

func (c *Classifier) buildPrompt(msg *model.Message) string {
	body := msg.BodyText
	if body == "" {
		body = msg.Snippet
	}
	body = llm.TruncateForContext(body, promptBodyTokens)

	from := msg.FromAddr
	if from == "" {
		from = "Unknown"
	}
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	return fmt.Sprintf("From: %s\nSubject: %s\nTo: %s\n\nBody:\n%s",
		from, subject, msg.ToAddr, body)
}

func parseResult(text string) (rawResult, error) {
	clean := llm.StripFences(text)

	var out rawResult
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		// Some models wrap the JSON in prose; retry on the outermost braces.
		start := strings.Index(clean, "{")
		end := strings.LastIndex(clean, "}")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(clean[start:end+1]), &out); err2 == nil {
				return out, nil
			}
		}
		return rawResult{}, fmt.Errorf("%w: %v", llm.ErrParse, err)
	}
	return out, nil
}

// normalize validates parsed fields against the vocabularies, defaulting
// unknown importance to medium and unknown category to notification so
// the result is always total.
func (c *Classifier) normalize(id string, r rawResult) model.Classification {
	importance := model.Importance(strings.ToLower(strings.TrimSpace(r.Importance)))
	if !model.ValidImportance(importance) {
		if r.Importance != "" {
			c.log.Warn("invalid importance, defaulting to medium", "id", id, "value", r.Importance)
		}
		importance = model.ImportanceMedium
	}

	category := model.Category(strings.ToLower(strings.TrimSpace(r.Category)))
	if !model.ValidCategory(category) {
		if r.Category != "" {
			c.log.Warn("invalid category, defaulting to notification", "id", id, "value", r.Category)
		}
		category = model.CategoryNotification
	}

	var summary *string
	if s := strings.TrimSpace(r.Summary); s != "" {
		summary = &s
	}

	return model.Classification{
		Importance: importance,
		Category:   category,
		Summary:    summary,
	}
}
