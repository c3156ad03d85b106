package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/repairdesk/repairdesk/internal/config"
)

// ErrPushDisabled is returned when no channel access token is configured.
var ErrPushDisabled = errors.New("line push disabled: no channel access token")

// Pusher delivers one message to one LINE user.
type Pusher interface {
	// Push sends msg. retryKey is forwarded as X-Line-Retry-Key; repeated
	// calls with the same key are delivered at most once by the platform.
	Push(ctx context.Context, to string, msg Message, retryKey string) error
}

// Client pushes messages through the LINE Messaging API.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient builds a Messaging API client from cfg.
func NewClient(cfg config.LineConfig) (*Client, error) {
	if cfg.ChannelAccessToken == "" {
		return nil, ErrPushDisabled
	}
	opts := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	if cfg.APIEndpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(cfg.APIEndpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	return &Client{api: api}, nil
}

// Push sends msg to the user. The SDK's WithContext mutates the shared
// client, so cancellation is checked up front and the HTTP timeout bounds the call.
func (c *Client) Push(ctx context.Context, to string, msg Message, retryKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sdkMsg, err := toSDKMessage(msg)
	if err != nil {
		return err
	}
	req := &messaging_api.PushMessageRequest{
		To:       to,
		Messages: []messaging_api.MessageInterface{sdkMsg},
	}
	resp, _, err := c.api.PushMessageWithHttpInfo(req, retryKey)
	if resp != nil && resp.StatusCode == http.StatusConflict {
		// the retry key was already accepted
		return nil
	}
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

func toSDKMessage(msg Message) (messaging_api.MessageInterface, error) {
	if !msg.IsFlex() {
		return messaging_api.TextMessage{Text: msg.Text}, nil
	}
	if msg.AltText == "" {
		return nil, errors.New("flex message needs alt text")
	}
	return messaging_api.FlexMessage{AltText: msg.AltText, Contents: msg.Flex}, nil
}

// DisabledPusher fails every push; used when no access token is configured
// so attempts are still recorded as FAILED and picked up once configured.
type DisabledPusher struct{}

func (DisabledPusher) Push(context.Context, string, Message, string) error {
	return ErrPushDisabled
}
