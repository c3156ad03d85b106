package dto

import (
	"encoding/json"
	"testing"
)

func TestLooseID(t *testing.T) {
	tests := map[string]LooseID{
		`{"id":"17"}`:   "17",
		`{"id":17}`:     "17",
		`{"id":"abc"}`:  "abc",
		`{"id":true}`:   "",
		`{"id":{"x":1}}`: "",
	}
	for body, want := range tests {
		var ref AssigneeRequest
		if err := json.Unmarshal([]byte(body), &ref); err != nil {
			t.Errorf("%s: unexpected error %v", body, err)
			continue
		}
		if ref.ID != want {
			t.Errorf("%s: id = %q, want %q", body, ref.ID, want)
		}
	}
}

func TestUpdateTicketRequestAssignee(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		set      bool
		assignee string
	}{
		{"absent", `{"title":"New"}`, false, ""},
		{"null clears", `{"assignee":null}`, true, ""},
		{"object", `{"assignee":{"id":5,"name":"Tech"}}`, true, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req UpdateTicketRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if req.AssigneeSet != tt.set {
				t.Errorf("AssigneeSet = %v, want %v", req.AssigneeSet, tt.set)
			}
			got := ""
			if req.Assignee != nil {
				got = string(req.Assignee.ID)
			}
			if got != tt.assignee {
				t.Errorf("assignee id = %q, want %q", got, tt.assignee)
			}
		})
	}

	var req UpdateTicketRequest
	if err := json.Unmarshal([]byte(`{"title":"New","status":"DONE"}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.Title == nil || *req.Title != "New" || req.Status == nil || *req.Status != "DONE" || req.Priority != nil {
		t.Errorf("req = %+v", req)
	}
}
