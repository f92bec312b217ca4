package entity

import "time"

// EmailTemplate is the text a notification is rendered from
type EmailTemplate struct {
	Tag           string `json:"tag"`
	Subject       string `json:"subject"`
	BodyHTML      string `json:"body_html"`
	SignatureHTML string `json:"signature_html"`
}

// Notification is a rendered message and its delivery record
type Notification struct {
	ID              int64      `json:"id"`
	RFQID           int64      `json:"rfq_id"`
	AuditEntryID    int64      `json:"audit_entry_id"`
	RecipientUserID int64      `json:"recipient_user_id"`
	RecipientEmail  string     `json:"recipient_email"`
	TemplateTag     string     `json:"template_tag"`
	Subject         string     `json:"subject"`
	Body            string     `json:"body"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}
