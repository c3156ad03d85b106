package line

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTicketCardMessage(t *testing.T) {
	msg := TicketCard{Code: "TKT-2026-1234560001", Title: "Printer jam", Priority: "HIGH", ActionURL: "https://desk/tickets/9"}.Message()

	if !msg.IsFlex() {
		t.Fatal("expected flex message")
	}
	if msg.AltText != "Job TKT-2026-1234560001: Printer jam" {
		t.Errorf("alt text = %q", msg.AltText)
	}
	container := flexJSON(t, msg)
	if container["type"] != "bubble" {
		t.Errorf("type = %v", container["type"])
	}
	raw := flexString(t, msg)
	for _, want := range []string{`"type":"box"`, `"type":"text"`, `"type":"button"`, `"type":"uri"`} {
		if !strings.Contains(raw, want) {
			t.Errorf("flex missing component %s", want)
		}
	}
	for _, want := range []string{"🔴 HIGH", "https://desk/tickets/9", "📋 New job"} {
		if !strings.Contains(raw, want) {
			t.Errorf("flex missing %q", want)
		}
	}
}

func TestTicketCardWithoutURLHasNoFooter(t *testing.T) {
	msg := TicketCard{Heading: "Received", Code: "C", Title: "T", Priority: "LOW"}.Message()
	if _, ok := flexJSON(t, msg)["footer"]; ok {
		t.Error("footer should be omitted without an action url")
	}
}

func TestStatusCardFallsBackToStatus(t *testing.T) {
	msg := StatusCard{Code: "TKT-1", Status: "ON_HOLD"}.Message()
	if msg.PlainText() != "Ticket TKT-1: ON_HOLD" {
		t.Errorf("plain text = %q", msg.PlainText())
	}

	labelled := StatusCard{Code: "TKT-1", Status: "DONE", StatusLabel: "Repair completed"}.Message()
	if !strings.Contains(flexString(t, labelled), "#10B981") {
		t.Error("expected DONE colour")
	}
}

func TestMenuMessage(t *testing.T) {
	msg := MenuMessage("https://desk/new", "")
	raw := flexString(t, msg)
	if !strings.Contains(raw, "Report a problem") || strings.Contains(raw, "My tickets") {
		t.Errorf("unexpected menu buttons: %s", raw)
	}
}

func TestTextMessagePlainText(t *testing.T) {
	msg := NewTextMessage("hello")
	if msg.IsFlex() || msg.PlainText() != "hello" {
		t.Errorf("unexpected %+v", msg)
	}
}

func flexString(t *testing.T, msg Message) string {
	t.Helper()
	raw, err := msg.FlexJSON()
	if err != nil {
		t.Fatalf("FlexJSON() error = %v", err)
	}
	return string(raw)
}

func flexJSON(t *testing.T, msg Message) map[string]any {
	t.Helper()
	var container map[string]any
	if err := json.Unmarshal([]byte(flexString(t, msg)), &container); err != nil {
		t.Fatalf("flex is not JSON: %v", err)
	}
	return container
}
