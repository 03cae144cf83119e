package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Notification is a Gmail watch event delivered over Pub/Sub.
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Subscriber listens for Gmail push notifications and triggers an
// incremental sync for each new one. Gmail often delivers the same
// historyId several times, so seen ids are deduplicated.
type Subscriber struct {
	client         *pubsub.Client
	subscriptionID string
	log            *slog.Logger

	mu        sync.Mutex
	processed map[uint64]bool
}

// NewSubscriber creates a Pub/Sub subscriber.
func NewSubscriber(ctx context.Context, projectID, subscriptionID string, log *slog.Logger) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Subscriber{
		client:         client,
		subscriptionID: subscriptionID,
		log:            log,
		processed:      make(map[uint64]bool),
	}, nil
}

// Listen receives messages until ctx is cancelled, invoking handler for
// each previously unseen notification.
func (s *Subscriber) Listen(ctx context.Context, handler func(ctx context.Context)) error {
	sub := s.client.Subscription(s.subscriptionID)

	s.log.Info("pub/sub listener started", "subscription", s.subscriptionID)

	return sub.Receive(ctx, func(msgCtx context.Context, m *pubsub.Message) {
		n, err := parseNotification(m.Data)
		if err != nil {
			s.log.Warn("unparseable notification", "error", err)
			m.Ack()
			return
		}

		if s.alreadyProcessed(n.HistoryID) {
			m.Ack()
			return
		}

		s.log.Info("mailbox change notification",
			"address", n.EmailAddress, "history_id", n.HistoryID)
		handler(msgCtx)
		m.Ack()
	})
}

// Close closes the Pub/Sub client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}

func (s *Subscriber) alreadyProcessed(historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[historyID] {
		return true
	}
	s.processed[historyID] = true
	return false
}

func parseNotification(data []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	return &n, nil
}
