package line

import (
	"encoding/json"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Line-Signature"

// Webhook event types the ingress acts on.
const (
	EventFollow   = "follow"
	EventUnfollow = "unfollow"
	EventMessage  = "message"
	EventPostback = "postback"
)

// VerifySignature checks signature against the exact bytes received.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidateSignature(channelSecret, signature, body)
}

// ParseWebhook decodes a verified webhook body.
func ParseWebhook(body []byte) (*webhook.CallbackRequest, error) {
	var req webhook.CallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EventInfo holds the fields routing and redelivery checks need from any event.
type EventInfo struct {
	Type           string
	WebhookEventID string
	UserID         string
	Redelivery     bool
}

// Describe extracts EventInfo from a decoded event.
func Describe(event webhook.EventInterface) EventInfo {
	info := EventInfo{Type: event.GetType()}
	switch e := event.(type) {
	case webhook.FollowEvent:
		info.fill(e.WebhookEventId, e.Source, e.DeliveryContext)
	case webhook.UnfollowEvent:
		info.fill(e.WebhookEventId, e.Source, e.DeliveryContext)
	case webhook.MessageEvent:
		info.fill(e.WebhookEventId, e.Source, e.DeliveryContext)
	case webhook.PostbackEvent:
		info.fill(e.WebhookEventId, e.Source, e.DeliveryContext)
	case webhook.UnknownEvent:
		_ = json.Unmarshal(e.Raw["webhookEventId"], &info.WebhookEventID)
	}
	return info
}

func (i *EventInfo) fill(id string, source webhook.SourceInterface, dc *webhook.DeliveryContext) {
	i.WebhookEventID = id
	i.UserID = SourceUserID(source)
	i.Redelivery = dc != nil && dc.IsRedelivery
}

// SourceUserID returns the LINE user behind an event source, if any.
func SourceUserID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// TextOf returns the text of a text message event.
func TextOf(event webhook.MessageEvent) (string, bool) {
	text, ok := event.Message.(webhook.TextMessageContent)
	if !ok {
		return "", false
	}
	return text.Text, true
}
