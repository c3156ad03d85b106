package line

import (
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/repairdesk/repairdesk/internal/line/linetest"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"destination":"U1","events":[]}`)
	sig := linetest.Sign("secret", body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		sig    string
		want   bool
	}{
		{"valid", "secret", body, sig, true},
		{"tampered body", "secret", []byte(`{"destination":"U2","events":[]}`), sig, false},
		{"whitespace changes bytes", "secret", []byte(`{"destination": "U1","events":[]}`), sig, false},
		{"wrong secret", "other", body, sig, false},
		{"empty signature", "secret", body, "", false},
		{"not base64", "secret", body, "%%%", false},
		{"empty secret", "", body, linetest.Sign("", body), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.sig); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignKnownVector(t *testing.T) {
	// echo -n 'hello' | openssl dgst -sha256 -hmac key -binary | base64
	if got := linetest.Sign("key", []byte("hello")); got != "kwezuRXvtRcf8U2MtV+8x5jGwO8UVtZt7RpqpyOli3s=" {
		t.Errorf("Sign() = %q", got)
	}
}

func TestParseWebhook(t *testing.T) {
	body := linetest.Body(
		linetest.Redelivered(linetest.TextEvent("01H", "U123", "hi")),
		linetest.UserEvent(EventUnfollow, "01J", "U456"),
		linetest.PostbackEvent("01K", "U789", "action=menu"),
		`{"type":"somethingNew","webhookEventId":"01L"}`,
	)
	req, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(req.Events) != 4 {
		t.Fatalf("events = %d, want 4", len(req.Events))
	}

	msg, ok := req.Events[0].(webhook.MessageEvent)
	if !ok {
		t.Fatalf("first event is %T", req.Events[0])
	}
	if text, ok := TextOf(msg); !ok || text != "hi" {
		t.Errorf("TextOf() = %q, %v", text, ok)
	}

	want := []EventInfo{
		{Type: EventMessage, WebhookEventID: "01H", UserID: "U123", Redelivery: true},
		{Type: EventUnfollow, WebhookEventID: "01J", UserID: "U456"},
		{Type: EventPostback, WebhookEventID: "01K", UserID: "U789"},
		{Type: "somethingNew", WebhookEventID: "01L"},
	}
	for i, event := range req.Events {
		if got := Describe(event); got != want[i] {
			t.Errorf("Describe(event %d) = %+v, want %+v", i, got, want[i])
		}
	}

	if _, err := ParseWebhook([]byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}

func TestSourceUserID(t *testing.T) {
	if got := SourceUserID(webhook.GroupSource{GroupId: "G1", UserId: "U1"}); got != "U1" {
		t.Errorf("group source user = %q", got)
	}
	if got := SourceUserID(nil); got != "" {
		t.Errorf("nil source user = %q", got)
	}
}
