package line

import (
	"encoding/json"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Message is an outbound push: plain text, or a flex bubble with alt text.
type Message struct {
	Text    string
	AltText string
	Flex    *messaging_api.FlexBubble
}

// IsFlex reports whether the message carries a flex bubble.
func (m Message) IsFlex() bool {
	return m.Flex != nil
}

// PlainText is what the recipient sees on clients that cannot render flex.
func (m Message) PlainText() string {
	if m.IsFlex() {
		return m.AltText
	}
	return m.Text
}

// FlexJSON renders the bubble in the wire format LINE receives.
func (m Message) FlexJSON() ([]byte, error) {
	if !m.IsFlex() {
		return nil, nil
	}
	return json.Marshal(m.Flex)
}

// NewTextMessage builds a text message.
func NewTextMessage(text string) Message {
	return Message{Text: text}
}

// NewFlexMessage wraps a bubble with the text shown in chat lists and notifications.
func NewFlexMessage(altText string, bubble *messaging_api.FlexBubble) Message {
	return Message{AltText: altText, Flex: bubble}
}

var priorityEmoji = map[string]string{
	"HIGH":   "🔴",
	"MEDIUM": "🟡",
	"LOW":    "🟢",
}

// TicketCard describes a ticket summary bubble.
type TicketCard struct {
	Heading   string
	Code      string
	Title     string
	Priority  string
	ActionURL string
}

// Message renders the card as a flex bubble.
func (c TicketCard) Message() Message {
	heading := c.Heading
	if heading == "" {
		heading = "📋 New job"
	}
	priority := strings.TrimSpace(priorityEmoji[c.Priority] + " " + c.Priority)
	b := card(heading, []messaging_api.FlexComponentInterface{
		row("Code:", c.Code, ""),
		row("Title:", c.Title, ""),
		row("Priority:", priority, ""),
	}, c.ActionURL)
	return NewFlexMessage("Job "+c.Code+": "+c.Title, b)
}

// StatusCard describes a ticket status change bubble.
type StatusCard struct {
	Code        string
	Status      string
	StatusLabel string
	ActionURL   string
}

var statusColor = map[string]string{
	"OPEN":        "#F59E0B",
	"IN_PROGRESS": "#3B82F6",
	"DONE":        "#10B981",
}

// Message renders the card as a flex bubble.
func (c StatusCard) Message() Message {
	label := c.StatusLabel
	if label == "" {
		label = c.Status
	}
	b := card("🔔 Ticket update", []messaging_api.FlexComponentInterface{
		row("Code:", c.Code, ""),
		row("Status:", label, statusColor[c.Status]),
	}, c.ActionURL)
	return NewFlexMessage("Ticket "+c.Code+": "+label, b)
}

// MenuMessage is the quick menu sent in reply to free-form chat messages.
func MenuMessage(newTicketURL, myTicketsURL string) Message {
	var footer []messaging_api.FlexComponentInterface
	if newTicketURL != "" {
		footer = append(footer, button("Report a problem", newTicketURL, messaging_api.FlexButtonSTYLE_PRIMARY))
	}
	if myTicketsURL != "" {
		footer = append(footer, button("My tickets", myTicketsURL, messaging_api.FlexButtonSTYLE_SECONDARY))
	}
	b := &messaging_api.FlexBubble{
		Body: &messaging_api.FlexBox{
			Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
			Contents: []messaging_api.FlexComponentInterface{
				&messaging_api.FlexText{Text: "🛠 Repair desk", Weight: messaging_api.FlexTextWEIGHT_BOLD, Size: "xl"},
				&messaging_api.FlexText{Text: "What would you like to do?", Size: "sm", Color: "#666666", Wrap: true},
			},
		},
	}
	if len(footer) > 0 {
		b.Footer = &messaging_api.FlexBox{
			Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
			Spacing:  "sm",
			Contents: footer,
		}
	}
	return NewFlexMessage("Repair desk menu", b)
}

func card(heading string, rows []messaging_api.FlexComponentInterface, actionURL string) *messaging_api.FlexBubble {
	b := &messaging_api.FlexBubble{
		Header: &messaging_api.FlexBox{
			Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
			Contents: []messaging_api.FlexComponentInterface{
				&messaging_api.FlexText{Text: heading, Weight: messaging_api.FlexTextWEIGHT_BOLD, Size: "xl", Color: "#000000"},
			},
		},
		Body: &messaging_api.FlexBox{
			Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
			Spacing:  "sm",
			Contents: rows,
		},
	}
	if actionURL != "" {
		b.Footer = &messaging_api.FlexBox{
			Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
			Contents: []messaging_api.FlexComponentInterface{button("View details", actionURL, messaging_api.FlexButtonSTYLE_PRIMARY)},
		}
	}
	return b
}

func row(label, value, color string) *messaging_api.FlexBox {
	if value == "" {
		value = "-"
	}
	if color == "" {
		color = "#666666"
	}
	return &messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_BASELINE,
		Contents: []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{Text: label, Color: "#aaaaaa", Size: "sm", Flex: 2},
			&messaging_api.FlexText{Text: value, Wrap: true, Color: color, Size: "sm", Flex: 3},
		},
	}
}

func button(label, uri string, style messaging_api.FlexButtonSTYLE) *messaging_api.FlexButton {
	return &messaging_api.FlexButton{
		Style:  style,
		Height: messaging_api.FlexButtonHEIGHT_SM,
		Action: &messaging_api.UriAction{Label: label, Uri: uri},
	}
}
