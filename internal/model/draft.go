package model

import "time"

// Tone is the writing style of a generated reply draft.
type Tone string

const (
	ToneFormal  Tone = "formal"
	ToneCasual  Tone = "casual"
	ToneNeutral Tone = "neutral"

	// ToneImproved marks drafts produced by revising an existing draft
	// with user feedback.
	ToneImproved Tone = "improved"
)

// GenerationTones lists the tones used for fresh variant generation,
// in variant order.
var GenerationTones = []Tone{ToneFormal, ToneCasual, ToneNeutral}

// Draft is one generated reply candidate owned by a single message.
// Improve operations append new drafts rather than mutating existing ones.
type Draft struct {
	ID        string     `db:"id" json:"id"`
	MessageID string     `db:"message_id" json:"message_id"`
	Tone      Tone       `db:"tone" json:"tone"`
	Content   string     `db:"content" json:"content"`
	Sent      bool       `db:"sent" json:"sent"`
	SentAt    *time.Time `db:"sent_at" json:"sent_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
