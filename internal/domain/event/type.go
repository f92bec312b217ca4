package event

// Type identifies the type of domain event
type Type string

const (
	TypeRFQCreated         Type = "rfq.created"
	TypeRFQTransitioned    Type = "rfq.transitioned"
	TypeRevisionCreated    Type = "rfq.revision_created"
	TypeRFQClosed          Type = "rfq.closed"
	TypeNotificationFailed Type = "notification.failed"
	TypeQuotationExported  Type = "quotation.exported"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRFQCreated,
		TypeRFQTransitioned,
		TypeRevisionCreated,
		TypeRFQClosed,
		TypeNotificationFailed,
		TypeQuotationExported:
		return true
	default:
		return false
	}
}
