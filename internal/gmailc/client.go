package gmailc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"mailagent/internal/model"
)

// Client wraps the Gmail API for the sync pipeline.
type Client struct {
	srv *gmail.Service
}

// NewClient creates a new Gmail client.
func NewClient(srv *gmail.Service) *Client {
	return &Client{srv: srv}
}

// QueryAfter builds a Gmail search query for messages newer than t.
func QueryAfter(t time.Time) string {
	return "after:" + t.UTC().Format("2006/01/02")
}

// QueryUnread matches unread messages only.
const QueryUnread = "is:unread"

// ListMessageIDs returns up to max message ids newer than since, plus
// the next page token ("" when exhausted). A zero since lists unread
// messages, matching a first sync with no checkpoint.
func (c *Client) ListMessageIDs(ctx context.Context, since time.Time, pageToken string, max int64) ([]string, string, error) {
	query := QueryUnread
	if !since.IsZero() {
		query = QueryAfter(since)
	}

	call := c.srv.Users.Messages.List("me").MaxResults(max).Q(query).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", wrapErr("list messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// FetchMessage fetches and parses one full message.
func (c *Client) FetchMessage(ctx context.Context, id string) (*model.Message, error) {
	msg, err := c.srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get message %s", id), err)
	}
	return parseMessage(msg), nil
}

// CheckConnection verifies the mailbox is reachable and authenticated.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, err := c.srv.Users.GetProfile("me").Context(ctx).Do()
	return wrapErr("get profile", err)
}

func parseMessage(msg *gmail.Message) *model.Message {
	body := extractBody(msg.Payload)
	if body == "" {
		body = msg.Snippet
	}

	labels := "[]"
	if len(msg.LabelIds) > 0 {
		if b, err := json.Marshal(msg.LabelIds); err == nil {
			labels = string(b)
		}
	}

	status := model.StatusRead
	for _, l := range msg.LabelIds {
		if l == "UNREAD" {
			status = model.StatusUnread
			break
		}
	}

	return &model.Message{
		ID:             msg.Id,
		ThreadID:       msg.ThreadId,
		FromAddr:       header(msg, "From"),
		ToAddr:         header(msg, "To"),
		Subject:        header(msg, "Subject"),
		BodyText:       body,
		Snippet:        msg.Snippet,
		Labels:         labels,
		ReceivedAt:     receivedAt(msg),
		HasAttachments: hasAttachments(msg.Payload),
		Status:         status,
		Importance:     model.ImportanceUnset,
		Category:       model.CategoryUnset,
		BodyHash:       model.BodyFingerprint(body),
	}
}

func header(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func receivedAt(msg *gmail.Message) time.Time {
	if d := header(msg, "Date"); d != "" {
		if t, err := mail.ParseDate(d); err == nil {
			return t.UTC()
		}
	}
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate).UTC()
	}
	return time.Time{}
}

func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.Body != nil && part.Body.Data != "" && part.MimeType != "text/html" && len(part.Parts) == 0 {
		d, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			return string(d)
		}
	}
	for _, p := range part.Parts {
		if p.MimeType == "text/plain" && p.Body != nil && p.Body.Data != "" {
			d, err := base64.URLEncoding.DecodeString(p.Body.Data)
			if err == nil {
				return string(d)
			}
		}
	}
	for _, p := range part.Parts {
		if body := extractBody(p); body != "" {
			return body
		}
	}
	return ""
}

func hasAttachments(part *gmail.MessagePart) bool {
	if part == nil {
		return false
	}
	for _, p := range part.Parts {
		if p.Filename != "" {
			return true
		}
		if hasAttachments(p) {
			return true
		}
	}
	return false
}
