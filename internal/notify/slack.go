package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/source"
)

// SlackNotifier posts breach and escalation notifications to Slack. A
// notifier without a token is disabled and silently skipped.
type SlackNotifier struct {
	client         *slack.Client
	defaultChannel string
	logger         *zap.Logger
}

// NewSlackNotifier builds a notifier from configuration.
func NewSlackNotifier(cfg config.SlackConfig, logger *zap.Logger) *SlackNotifier {
	notifier := &SlackNotifier{
		defaultChannel: cfg.DefaultChannel,
		logger:         logger,
	}
	if cfg.Token != "" {
		notifier.client = slack.New(cfg.Token)
	}
	return notifier
}

// Enabled reports whether the notifier has a configured client.
func (n *SlackNotifier) Enabled() bool {
	return n.client != nil
}

// Send posts a message. An empty channel falls back to the default channel.
func (n *SlackNotifier) Send(ctx context.Context, channel, message string) error {
	if n.client == nil {
		return nil
	}
	if channel == "" {
		channel = n.defaultChannel
	}
	_, _, err := n.client.PostMessageContext(ctx, channel, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("post slack message to %s: %w", channel, err)
	}
	return nil
}

// CompositeSink is the ActionSink handed to the escalation manager. Ticket
// mutations go to the remote service desk; direct notifications on the slack
// channel are routed to Slack, everything else falls through to the remote
// notifications endpoint.
type CompositeSink struct {
	source.ActionSink
	slack *SlackNotifier
}

// NewCompositeSink wraps the remote sink with Slack routing.
func NewCompositeSink(remote source.ActionSink, slackNotifier *SlackNotifier) *CompositeSink {
	return &CompositeSink{ActionSink: remote, slack: slackNotifier}
}

// Notify routes a direct notification by channel.
func (s *CompositeSink) Notify(ctx context.Context, recipientID, channel, message string) error {
	if channel == "slack" && s.slack != nil && s.slack.Enabled() {
		return s.slack.Send(ctx, "", fmt.Sprintf("Notification for %s:\n%s", recipientID, message))
	}
	return s.ActionSink.Notify(ctx, recipientID, channel, message)
}
