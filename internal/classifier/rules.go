package classifier

import (
	"strings"

	"mailagent/internal/model"
)

// SenderRule forces a classification for a known bulk-sender pattern.
// Sender address patterns are a stronger signal than generated text, so
// a matching rule always wins over parsed inference output.
type SenderRule struct {
	Name       string
	Pattern    string // substring matched against the lowercased From header
	Category   model.Category
	Importance model.Importance
}

var bulkSenderRules = []SenderRule{
	{Name: "no-reply", Pattern: "no-reply@", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
	{Name: "noreply", Pattern: "noreply@", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
	{Name: "newsletter", Pattern: "newsletter@", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
	{Name: "substack", Pattern: "@substack.com", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
	{Name: "mailchimp", Pattern: ".mailchimp.com", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
	{Name: "sendgrid", Pattern: ".sendgrid.net", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
	{Name: "github-notifications", Pattern: "notifications@github.com", Category: model.CategoryNewsletter, Importance: model.ImportanceLow},
}

// MatchBulkSender returns the first rule matching the sender address.
func MatchBulkSender(sender string) (SenderRule, bool) {
	s := strings.ToLower(sender)
	for _, r := range bulkSenderRules {
		if strings.Contains(s, r.Pattern) {
			return r, true
		}
	}
	return SenderRule{}, false
}

// ApplySenderOverride replaces importance and category when the sender
// matches a bulk-sender rule. The summary is kept as-is.
func ApplySenderOverride(sender string, cls model.Classification) model.Classification {
	rule, ok := MatchBulkSender(sender)
	if !ok {
		return cls
	}
	cls.Category = rule.Category
	cls.Importance = rule.Importance
	return cls
}
