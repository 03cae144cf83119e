package api

import (
	"net/mail"
	"strings"
)

// ReplyAddress extracts the bare address a reply should go to from a
// From header, which may carry a display name.
func ReplyAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// ReplySubject prefixes a subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return "Re:"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}
