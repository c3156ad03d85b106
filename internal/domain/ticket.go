package domain

import "time"

// TicketStatus is free-form; these are the values the workflow and status cards know.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusDone       TicketStatus = "DONE"
)

// TicketPriority enumerates repair urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// ProblemCategory groups the kind of equipment fault.
type ProblemCategory string

const (
	ProblemNetwork         ProblemCategory = "NETWORK"
	ProblemHardware        ProblemCategory = "HARDWARE"
	ProblemSoftware        ProblemCategory = "SOFTWARE"
	ProblemPrinter         ProblemCategory = "PRINTER"
	ProblemAirConditioning ProblemCategory = "AIR_CONDITIONING"
	ProblemElectricity     ProblemCategory = "ELECTRICITY"
	ProblemOther           ProblemCategory = "OTHER"
)

// ProblemSubcategory narrows a ProblemCategory.
type ProblemSubcategory string

const (
	SubInternetDown   ProblemSubcategory = "INTERNET_DOWN"
	SubSlowConnection ProblemSubcategory = "SLOW_CONNECTION"
	SubWifiIssue      ProblemSubcategory = "WIFI_ISSUE"
	SubMonitorBroken  ProblemSubcategory = "MONITOR_BROKEN"
	SubKeyboardBroken ProblemSubcategory = "KEYBOARD_BROKEN"
	SubMouseBroken    ProblemSubcategory = "MOUSE_BROKEN"
	SubComputerCrash  ProblemSubcategory = "COMPUTER_CRASH"
	SubInstallation   ProblemSubcategory = "INSTALLATION"
	SubLicense        ProblemSubcategory = "LICENSE"
	SubPerformance    ProblemSubcategory = "PERFORMANCE"
	SubJam            ProblemSubcategory = "JAM"
	SubNoPrinting     ProblemSubcategory = "NO_PRINTING"
	SubCartridge      ProblemSubcategory = "CARTRIDGE"
	SubInstallationAC ProblemSubcategory = "INSTALLATION_AC"
	SubMalfunctionAC  ProblemSubcategory = "MALFUNCTION_AC"
	SubPowerDown      ProblemSubcategory = "POWER_DOWN"
	SubLightProblem   ProblemSubcategory = "LIGHT_PROBLEM"
	SubOther          ProblemSubcategory = "OTHER"
)

// Defaults applied when a submitted value is absent or unknown.
const (
	DefaultPriority           = TicketPriorityMedium
	DefaultProblemCategory    = ProblemHardware
	DefaultProblemSubcategory = SubOther
	DefaultLocation           = "N/A"
	DefaultCategory           = "REPAIR"
)

var priorities = map[TicketPriority]struct{}{
	TicketPriorityLow: {}, TicketPriorityMedium: {}, TicketPriorityHigh: {},
}

// SubcategoriesByCategory documents which subcategories belong to a category.
// Validation only checks membership in the flat set.
var SubcategoriesByCategory = map[ProblemCategory][]ProblemSubcategory{
	ProblemNetwork:         {SubInternetDown, SubSlowConnection, SubWifiIssue},
	ProblemHardware:        {SubMonitorBroken, SubKeyboardBroken, SubMouseBroken, SubComputerCrash},
	ProblemSoftware:        {SubInstallation, SubLicense, SubPerformance},
	ProblemPrinter:         {SubJam, SubNoPrinting, SubCartridge},
	ProblemAirConditioning: {SubInstallationAC, SubMalfunctionAC},
	ProblemElectricity:     {SubPowerDown, SubLightProblem},
	ProblemOther:           {SubOther},
}

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	_, ok := priorities[p]
	return ok
}

// Valid reports whether c is one of the known problem categories.
func (c ProblemCategory) Valid() bool {
	_, ok := SubcategoriesByCategory[c]
	return ok
}

// Valid reports whether s is one of the known problem subcategories.
func (s ProblemSubcategory) Valid() bool {
	for _, subs := range SubcategoriesByCategory {
		for _, sub := range subs {
			if sub == s {
				return true
			}
		}
	}
	return false
}

// UserSummary is the projection of a user embedded in ticket reads.
type UserSummary struct {
	ID    int64
	Name  string
	Email string
	Role  Role
}

// Ticket is the aggregate for repair requests.
type Ticket struct {
	ID                 int64
	Code               string
	Title              string
	Description        string
	EquipmentName      string
	EquipmentID        *string
	Location           string
	Category           string
	ProblemCategory    ProblemCategory
	ProblemSubcategory ProblemSubcategory
	Priority           TicketPriority
	Status             TicketStatus
	UserID             int64
	AssigneeID         *int64
	Notes              *string
	RequiredDate       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Owner       *UserSummary
	Assignee    *UserSummary
	Attachments []Attachment
	Logs        []TicketLog
}

// Attachment is file metadata stored against a ticket.
type Attachment struct {
	ID         int64
	TicketID   int64
	FileName   string
	FileURL    string
	StorageKey string
	FileSize   int64
	MimeType   string
	CreatedAt  time.Time
}
