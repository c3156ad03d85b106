package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/repairdesk/repairdesk/internal/domain"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// AssigneeRef is the {id, name} object clients send for an assignee.
// ID stays a string because clients send whatever they have.
type AssigneeRef struct {
	ID   string
	Name string
}

// OptionalAssignee distinguishes "not sent" from "sent as null" on update.
type OptionalAssignee struct {
	Present bool
	Ref     *AssigneeRef
}

// TicketCreateInput is a parsed but unvalidated ticket submission.
type TicketCreateInput struct {
	Title              string
	Description        string
	EquipmentName      string
	EquipmentID        string
	Location           string
	Category           string
	ProblemCategory    string
	ProblemSubcategory string
	Priority           string
	Notes              string
	RequiredDate       *time.Time
	Assignee           *AssigneeRef
}

// ExternalContact carries the chat-channel contact fields folded into notes.
type ExternalContact struct {
	Phone  string
	LineID string
}

// NormalizedTicket is a submission after trimming, required-field checks and enum coercion.
type NormalizedTicket struct {
	Title              string
	Description        string
	EquipmentName      string
	EquipmentID        *string
	Location           string
	Category           string
	ProblemCategory    domain.ProblemCategory
	ProblemSubcategory domain.ProblemSubcategory
	Priority           domain.TicketPriority
	Notes              *string
	RequiredDate       *time.Time
	AssigneeID         *int64
}

// TicketUpdateInput holds the fields present in a partial update.
type TicketUpdateInput struct {
	Title              *string
	Description        *string
	EquipmentName      *string
	EquipmentID        *string
	Location           *string
	Category           *string
	ProblemCategory    *string
	ProblemSubcategory *string
	Priority           *string
	Status             *string
	Notes              *string
	RequiredDate       *time.Time
	Assignee           OptionalAssignee
}

// NormalizeTicketInput validates required text and coerces enumerated fields.
// Unknown or missing priority, problem category and subcategory fall back to
// their defaults instead of failing.
func NormalizeTicketInput(in TicketCreateInput) (NormalizedTicket, error) {
	out := NormalizedTicket{
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		EquipmentName: strings.TrimSpace(in.EquipmentName),
		RequiredDate:  in.RequiredDate,
	}

	var missing []string
	if out.Title == "" {
		missing = append(missing, "title")
	}
	if out.Description == "" {
		missing = append(missing, "description")
	}
	if out.EquipmentName == "" {
		missing = append(missing, "equipmentName")
	}
	if len(missing) > 0 {
		return NormalizedTicket{}, apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	out.Location = orDefault(in.Location, domain.DefaultLocation)
	out.Category = orDefault(in.Category, domain.DefaultCategory)
	out.Priority = coercePriority(in.Priority)
	out.ProblemCategory = coerceProblemCategory(in.ProblemCategory)
	out.ProblemSubcategory = coerceProblemSubcategory(in.ProblemSubcategory)
	out.EquipmentID = optionalText(in.EquipmentID)
	out.Notes = optionalText(in.Notes)
	out.AssigneeID = parseAssigneeID(in.Assignee)
	return out, nil
}

func coercePriority(raw string) domain.TicketPriority {
	p := domain.TicketPriority(raw)
	if p.Valid() {
		return p
	}
	return domain.DefaultPriority
}

func coerceProblemCategory(raw string) domain.ProblemCategory {
	c := domain.ProblemCategory(raw)
	if c.Valid() {
		return c
	}
	return domain.DefaultProblemCategory
}

func coerceProblemSubcategory(raw string) domain.ProblemSubcategory {
	s := domain.ProblemSubcategory(raw)
	if s.Valid() {
		return s
	}
	return domain.DefaultProblemSubcategory
}

// parseAssigneeID returns nil for a missing, blank or non-numeric id.
func parseAssigneeID(ref *AssigneeRef) *int64 {
	if ref == nil {
		return nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(ref.ID), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func orDefault(raw, fallback string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return fallback
}

func optionalText(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	return &v
}

// foldContactNotes appends contact lines for chat-channel submissions to the notes.
func foldContactNotes(notes *string, contact ExternalContact, lineUserID string) *string {
	var lines []string
	if notes != nil && *notes != "" {
		lines = append(lines, *notes)
	}
	if phone := strings.TrimSpace(contact.Phone); phone != "" {
		lines = append(lines, "Phone: "+phone)
	}
	if lineID := strings.TrimSpace(contact.LineID); lineID != "" {
		lines = append(lines, "LINE ID: "+lineID)
	}
	lines = append(lines, "LINE User ID: "+lineUserID)
	joined := strings.Join(lines, "\n")
	return &joined
}
