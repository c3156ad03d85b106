// Package linetest builds signed LINE webhook payloads for tests.
package linetest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Sign computes the X-Line-Signature the platform sends for body.
func Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Body wraps raw event objects in a webhook request body.
func Body(events ...string) []byte {
	return []byte(`{"destination":"Ubot","events":[` + strings.Join(events, ",") + `]}`)
}

// TextEvent is a text message sent by userID.
func TextEvent(id, userID, text string) string {
	return fmt.Sprintf(`{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":%q,`+
		`"deliveryContext":{"isRedelivery":false},"replyToken":"reply-%s","source":{"type":"user","userId":%q},`+
		`"message":{"id":"m-%s","type":"text","quoteToken":"q-%s","text":%q}}`, id, id, userID, id, id, text)
}

// UserEvent is an event of eventType with no payload beyond its user source,
// such as follow or unfollow.
func UserEvent(eventType, id, userID string) string {
	return fmt.Sprintf(`{"type":%q,"mode":"active","timestamp":1700000000000,"webhookEventId":%q,`+
		`"deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":%q}}`, eventType, id, userID)
}

// PostbackEvent is a postback action tapped by userID.
func PostbackEvent(id, userID, data string) string {
	return fmt.Sprintf(`{"type":"postback","mode":"active","timestamp":1700000000000,"webhookEventId":%q,`+
		`"deliveryContext":{"isRedelivery":false},"replyToken":"reply-%s","source":{"type":"user","userId":%q},`+
		`"postback":{"data":%q}}`, id, id, userID, data)
}

// Redelivered marks event as a redelivery.
func Redelivered(event string) string {
	return strings.Replace(event, `"isRedelivery":false`, `"isRedelivery":true`, 1)
}
