package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Importance is the AI-assigned priority of a message.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
	ImportanceUnset  Importance = "unset"
)

// Category is the AI-assigned kind of a message.
type Category string

const (
	CategoryProfessional   Category = "professional"
	CategoryPersonal       Category = "personal"
	CategoryNewsletter     Category = "newsletter"
	CategoryNotification   Category = "notification"
	CategoryUrgent         Category = "urgent"
	CategoryCommercial     Category = "commercial"
	CategoryAdministrative Category = "administrative"
	CategoryUnset          Category = "unset"
)

// Status is the read state of a message.
type Status string

const (
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

// ValidImportance reports whether v is a known importance level.
func ValidImportance(v Importance) bool {
	switch v {
	case ImportanceHigh, ImportanceMedium, ImportanceLow:
		return true
	}
	return false
}

// ValidCategory reports whether v is a known category.
func ValidCategory(v Category) bool {
	switch v {
	case CategoryProfessional, CategoryPersonal, CategoryNewsletter,
		CategoryNotification, CategoryUrgent, CategoryCommercial,
		CategoryAdministrative:
		return true
	}
	return false
}

// Message is one mailbox entry. ID is the provider-stable identifier.
// Importance, Category and AISummary are either all unset or all set;
// BodyHash fingerprints the body version the classification belongs to.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ThreadID       string     `db:"thread_id" json:"thread_id"`
	FromAddr       string     `db:"from_addr" json:"from_addr"`
	ToAddr         string     `db:"to_addr" json:"to_addr"`
	Subject        string     `db:"subject" json:"subject"`
	BodyText       string     `db:"body_text" json:"body_text"`
	Snippet        string     `db:"snippet" json:"snippet"`
	Labels         string     `db:"labels" json:"-"`
	ReceivedAt     time.Time  `db:"received_at" json:"received_at"`
	HasAttachments bool       `db:"has_attachments" json:"has_attachments"`
	Status         Status     `db:"status" json:"status"`
	Importance     Importance `db:"importance" json:"importance"`
	Category       Category   `db:"category" json:"category"`
	AISummary      *string    `db:"ai_summary" json:"ai_summary"`
	BodyHash       string     `db:"body_hash" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Classified reports whether the classification fields have been populated.
func (m *Message) Classified() bool {
	return m.Importance != ImportanceUnset && m.Importance != "" &&
		m.Category != CategoryUnset && m.Category != ""
}

// Classification is the result of classifying one message.
// A nil Summary means no summary could be produced.
type Classification struct {
	Importance Importance `json:"importance"`
	Category   Category   `json:"category"`
	Summary    *string    `json:"summary"`
}

// BodyFingerprint returns a stable hash of a message body, used to guard
// classification writes against concurrent re-fetches of changed content.
func BodyFingerprint(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
