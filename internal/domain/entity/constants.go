package entity

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Assignment status constants
const (
	AssignmentStatusActive = "ACTIVE"
)

// Revision version of an original RFQ
const OriginalVersionNo = 0
