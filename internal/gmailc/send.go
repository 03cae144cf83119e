package gmailc

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/gmail/v1"
)

// SendReply sends a composed reply and returns the provider id of the
// sent message. inReplyTo, when set, threads the reply under the
// original message.
func (c *Client) SendReply(ctx context.Context, to, subject, body, inReplyTo string) (string, error) {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\n", to, subject)
	if inReplyTo != "" {
		raw += fmt.Sprintf("In-Reply-To: %s\r\nReferences: %s\r\n", inReplyTo, inReplyTo)
	}
	raw += "\r\n" + body

	encoded := base64.URLEncoding.EncodeToString([]byte(raw))

	sent, err := c.srv.Users.Messages.Send("me", &gmail.Message{Raw: encoded}).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("send message", err)
	}
	return sent.Id, nil
}

// MarkRead removes the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := c.srv.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	return wrapErr(fmt.Sprintf("mark read %s", id), err)
}
