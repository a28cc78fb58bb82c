// Package slackbot posts pass summaries to a Slack channel.
package slackbot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier posts completion notices. A nil *Notifier is valid and posts
// nothing, so callers need not check whether Slack is configured.
type Notifier struct {
	api     *slack.Client
	channel string
	mention []string
	logger  *zap.Logger

	mu       sync.Mutex
	resolved bool
	prefix   string
}

// New returns a Notifier, or nil when token or channel is empty. mention
// lists Slack user IDs, handles or display names to @-mention in every
// notice.
func New(token, channel string, mention []string, logger *zap.Logger, opts ...slack.Option) *Notifier {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(channel) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		api:     slack.New(token, opts...),
		channel: channel,
		mention: mention,
		logger:  logger,
	}
}

// Notify posts "<title>: <summary>" to the channel, prefixed with mentions.
func (n *Notifier) Notify(ctx context.Context, title, summary string) error {
	if n == nil {
		return nil
	}
	text := fmt.Sprintf("%s: %s", title, summary)
	if prefix := n.mentionPrefix(ctx); prefix != "" {
		text = prefix + " " + text
	}

	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post slack notice: %w", err)
	}
	n.logger.Debug("posted slack notice", zap.String("channel", n.channel))
	return nil
}
