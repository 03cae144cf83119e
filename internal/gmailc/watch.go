package gmailc

import (
	"context"

	"google.golang.org/api/gmail/v1"
)

// EnableWatch enables Gmail push notifications to the given Pub/Sub topic.
func (c *Client) EnableWatch(ctx context.Context, topic string) error {
	req := &gmail.WatchRequest{TopicName: topic}
	_, err := c.srv.Users.Watch("me", req).Context(ctx).Do()
	return wrapErr("enable watch", err)
}
