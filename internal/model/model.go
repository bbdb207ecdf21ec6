package model

import "time"

// EventStatus is the lifecycle state reported by the calendar source.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// EventTime is either a timed instant or an all-day date, mirroring how
// calendar APIs expose start/end.
type EventTime struct {
	// DateTime is set for timed events.
	DateTime time.Time
	// Date is set for all-day events, formatted as YYYY-MM-DD.
	Date string
}

// IsZero reports whether neither a date-time nor a date is present.
func (t EventTime) IsZero() bool {
	return t.DateTime.IsZero() && t.Date == ""
}

// Event is a raw calendar event as delivered by a calendar source. It is
// read-only input; this system never writes back to the calendar.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       EventTime
	End         EventTime
	Status      EventStatus
}

// Cancelled reports whether the source marked the event as deleted.
func (e Event) Cancelled() bool {
	return e.Status == StatusCancelled
}

// Assignment is the person/role split parsed out of an event title.
type Assignment struct {
	DisplayName string
	Primary     string
	Secondary   string
}

// ServiceKind describes which services a booking covers.
type ServiceKind string

const (
	ServiceMakeupTurban ServiceKind = "makyaj+turban"
	ServiceMakeup       ServiceKind = "makyaj"
	ServiceTurban       ServiceKind = "turban"
	ServiceMakeupHair   ServiceKind = "makyaj+sac"
	ServiceHair         ServiceKind = "sac"
)

// Sentinel marks a numeric field that is explicitly unresolved ("X" in the
// description). Zero means the field was not mentioned at all.
const Sentinel = -1

// ExtractedFields is the fixed schema pulled out of an event description.
// Every field defaults to its zero value.
type ExtractedFields struct {
	AgreedPrice int `json:"agreedPrice"`
	Deposit     int `json:"deposit"`
	Balance     int `json:"balance"`

	HennaNight    string `json:"hennaNight"`
	Phone         string `json:"phone"`
	SpousePhone   string `json:"spousePhone"`
	Instagram     string `json:"instagram"`
	Photographer  string `json:"photographer"`
	FashionHouse  string `json:"fashionHouse"`
	GownVendor    string `json:"gownVendor"`
	Hairdresser   string `json:"hairdresser"`
	CeremonyDate  string `json:"ceremonyDate"`
	AgreedDate    string `json:"agreedDate"`
	CustomerNote  string `json:"customerNote"`
	ReceiptImage  string `json:"receiptImage"`
	ReviewRequest string `json:"reviewRequest"`

	InfoSent        bool `json:"infoSent"`
	PriceWritten    bool `json:"priceWritten"`
	MaterialsSent   bool `json:"materialsSent"`
	SharingConsent  bool `json:"sharingConsent"`
	ReviewRequested bool `json:"reviewRequested"`

	HairStyleDecided  bool   `json:"hairStyleDecided"`
	FittingPreference string `json:"fittingPreference"`
	FittingDateSet    bool   `json:"fittingDateSet"`

	DestinationTime string `json:"destinationTime"`
	Destination     string `json:"destination"`

	ShootFeeReceived      bool   `json:"shootFeeReceived"`
	PhotoSharingConsent   bool   `json:"photoSharingConsent"`
	CoupleJobFinished     bool   `json:"coupleJobFinished"`
	FileOwnershipTransfer bool   `json:"fileOwnershipTransferred"`
	ExtraServices         string `json:"extraServices"`
}

// Record is the persisted business record derived from one calendar event.
// Its identity is the calendar event id.
type Record struct {
	ID   string `json:"id"`
	Firm string `json:"firm"`

	Name            string      `json:"name"`
	DisplayName     string      `json:"displayName"`
	Primary         string      `json:"primaryAssignee"`
	Secondary       string      `json:"secondaryAssignee"`
	Videographer    string      `json:"videographer"`
	Service         ServiceKind `json:"service"`
	Freelance       bool        `json:"freelance"`
	DoubleTurban    bool        `json:"doubleTurban"`
	Fitting         bool        `json:"fitting"`
	Reference       bool        `json:"reference"`
	StaffCancelled  bool        `json:"staffCancelled"`
	PaymentComplete bool        `json:"paymentComplete"`

	EventType string `json:"eventType"`

	Date    string `json:"date"`
	Time    string `json:"time"`
	EndTime string `json:"endTime"`
	CheckAt string `json:"checkAt"`

	ExtractedFields

	LastUpdated time.Time `json:"lastUpdated"`
}

// Deletion marks an event whose stored record must be purged.
type Deletion struct {
	ID     string
	Reason string
}

// Checkpoint is the persisted continuation token of one sync stream.
type Checkpoint struct {
	StreamID  string
	SyncToken string
	UpdatedAt time.Time
}

// Channel is a registered push-notification channel for a calendar.
type Channel struct {
	ID         string
	StreamID   string
	ResourceID string
	Token      string
	Expiration time.Time
	CreatedAt  time.Time
}

// SyncStatus is the operational state reported by the health endpoint.
type SyncStatus struct {
	LastSync        time.Time      `json:"lastSync"`
	LastFullSync    time.Time      `json:"lastFullSync"`
	LastWebhook     time.Time      `json:"lastWebhook"`
	LastWebhookInfo string         `json:"lastWebhookInfo,omitempty"`
	LastError       time.Time      `json:"lastError"`
	LastErrorType   string         `json:"lastErrorType,omitempty"`
	LastErrorMsg    string         `json:"lastErrorMessage,omitempty"`
	LastResult      map[string]any `json:"lastResult,omitempty"`
}
