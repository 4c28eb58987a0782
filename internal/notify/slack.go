package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"
)

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts alerts to a single channel as colored attachments.
type SlackNotifier struct {
	client  slackPoster
	channel string
}

func NewSlackNotifier(token, channel string, options ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token, options...),
		channel: channel,
	}
}

func (s *SlackNotifier) Send(ctx context.Context, msg Message) error {
	attachment := slack.Attachment{
		Color: levelColor(msg),
		Title: msg.Subject,
		Text:  msg.Body,
		Fields: []slack.AttachmentField{
			{
				Title: "Recipient",
				Value: msg.To.Name,
				Short: true,
			},
			{
				Title: "Level",
				Value: string(msg.Level),
				Short: true,
			},
		},
		Footer: "ReportTrack",
		Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}
