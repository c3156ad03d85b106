package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// AssigneeRequest is the {id, name} object sent for an assignee.
type AssigneeRequest struct {
	ID   LooseID `json:"id"`
	Name string  `json:"name"`
}

// LooseID accepts an id sent as a JSON string or number. Anything else
// decodes to the empty string.
type LooseID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *LooseID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = LooseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = LooseID(n.String())
		return nil
	}
	*id = ""
	return nil
}

// CreateTicketRequest payload. Multipart submissions carry the same field
// names as form values, with assignee as a JSON-encoded string.
type CreateTicketRequest struct {
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	EquipmentName      string           `json:"equipmentName"`
	EquipmentID        string           `json:"equipmentId"`
	Location           string           `json:"location"`
	Category           string           `json:"category"`
	ProblemCategory    string           `json:"problemCategory"`
	ProblemSubcategory string           `json:"problemSubcategory"`
	Priority           string           `json:"priority"`
	Notes              string           `json:"notes"`
	RequiredDate       string           `json:"requiredDate"`
	Assignee           *AssigneeRequest `json:"assignee"`
	PhoneNumber        string           `json:"phoneNumber"`
	LineID             string           `json:"lineId"`
}

// UpdateTicketRequest carries only the fields the client sent.
// AssigneeSet distinguishes an explicit null from an absent key.
type UpdateTicketRequest struct {
	Title              *string          `json:"title"`
	Description        *string          `json:"description"`
	EquipmentName      *string          `json:"equipmentName"`
	EquipmentID        *string          `json:"equipmentId"`
	Location           *string          `json:"location"`
	Category           *string          `json:"category"`
	ProblemCategory    *string          `json:"problemCategory"`
	ProblemSubcategory *string          `json:"problemSubcategory"`
	Priority           *string          `json:"priority"`
	Status             *string          `json:"status"`
	Notes              *string          `json:"notes"`
	RequiredDate       *string          `json:"requiredDate"`
	Assignee           *AssigneeRequest `json:"-"`
	AssigneeSet        bool             `json:"-"`
}

// UnmarshalJSON records whether "assignee" was present.
func (r *UpdateTicketRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateTicketRequest
	var body struct {
		plain
		Assignee json.RawMessage `json:"assignee"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	*r = UpdateTicketRequest(body.plain)
	if body.Assignee == nil {
		return nil
	}
	r.AssigneeSet = true
	return r.SetAssignee(body.Assignee)
}

// SetAssignee decodes a raw assignee value; null or empty clears it.
func (r *UpdateTicketRequest) SetAssignee(raw []byte) error {
	r.AssigneeSet = true
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		r.Assignee = nil
		return nil
	}
	var ref AssigneeRequest
	if err := json.Unmarshal(raw, &ref); err != nil {
		return err
	}
	r.Assignee = &ref
	return nil
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	FileSize  int64     `json:"fileSize"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttachmentErrorResponse reports a file that was not stored.
type AttachmentErrorResponse struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// TicketLogResponse is one history entry.
type TicketLogResponse struct {
	ID        int64                `json:"id"`
	Action    domain.TicketAction  `json:"action"`
	OldValue  map[string]any       `json:"oldValue,omitempty"`
	NewValue  map[string]any       `json:"newValue,omitempty"`
	Comment   *string              `json:"comment,omitempty"`
	Actor     *UserSummaryResponse `json:"actor,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID                 int64                     `json:"id"`
	Code               string                    `json:"code"`
	Title              string                    `json:"title"`
	Description        string                    `json:"description"`
	EquipmentName      string                    `json:"equipmentName"`
	EquipmentID        *string                   `json:"equipmentId"`
	Location           string                    `json:"location"`
	Category           string                    `json:"category"`
	ProblemCategory    domain.ProblemCategory    `json:"problemCategory"`
	ProblemSubcategory domain.ProblemSubcategory `json:"problemSubcategory"`
	Priority           domain.TicketPriority     `json:"priority"`
	Status             domain.TicketStatus       `json:"status"`
	UserID             int64                     `json:"userId"`
	AssigneeID         *int64                    `json:"assigneeId"`
	Notes              *string                   `json:"notes"`
	RequiredDate       *time.Time                `json:"requiredDate"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
	User               *UserSummaryResponse      `json:"user"`
	Assignee           *UserSummaryResponse      `json:"assignee"`
	Attachments        []AttachmentResponse      `json:"attachments"`
	Logs               []TicketLogResponse       `json:"logs,omitempty"`
	AttachmentErrors   []AttachmentErrorResponse `json:"attachmentErrors,omitempty"`
}
