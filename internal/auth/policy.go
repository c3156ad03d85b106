package auth

import "github.com/repairdesk/repairdesk/internal/domain"

// CanViewTicket allows the owner and staff.
func CanViewTicket(p *Principal, t *domain.Ticket) bool {
	if p == nil || t == nil {
		return false
	}
	return p.IsStaff() || t.UserID == p.UserID
}

// CanDeleteTicket follows the same rule as viewing.
func CanDeleteTicket(p *Principal, t *domain.Ticket) bool {
	return CanViewTicket(p, t)
}

// CanModifyTicket additionally allows the assignee.
func CanModifyTicket(p *Principal, t *domain.Ticket) bool {
	if CanViewTicket(p, t) {
		return true
	}
	return p != nil && t != nil && t.AssigneeID != nil && *t.AssigneeID == p.UserID
}
