package entity

import "time"

// RFQ is a request for quotation. Revisions are immutable snapshots that
// point back to the original through ParentRFQID.
type RFQ struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	ClientRef        string    `json:"client_ref"`
	AccountManagerID int64     `json:"account_manager_id"`
	StateID          int64     `json:"state_id"`
	Active           bool      `json:"active"`
	VersionNo        int       `json:"version_no"`
	ParentRFQID      *int64    `json:"parent_rfq_id,omitempty"`
	RowVersion       int64     `json:"row_version"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsRevision reports whether the row is a revision snapshot
func (r *RFQ) IsRevision() bool {
	return r.VersionNo > OriginalVersionNo
}

// AuditEntry is one row of an RFQ's append-only audit trail
type AuditEntry struct {
	ID        int64     `json:"id"`
	RFQID     int64     `json:"rfq_id"`
	UserID    int64     `json:"user_id"`
	StateID   int64     `json:"state_id"`
	Trigger   string    `json:"trigger"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Assignment records that a user was asked to act on an RFQ in a role.
// Edges are append-only; reassignment adds a new edge.
type Assignment struct {
	ID             int64     `json:"id"`
	RFQID          int64     `json:"rfq_id"`
	AssignedToUser int64     `json:"assigned_to_user"`
	AssignedToRole string    `json:"assigned_to_role"`
	AssignedByUser int64     `json:"assigned_by_user"`
	AssignedByRole string    `json:"assigned_by_role"`
	PlantID        *int64    `json:"plant_id,omitempty"`
	Comment        string    `json:"comment"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// StateDefinition is one row of the states lookup table
type StateDefinition struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Terminal bool   `json:"terminal"`
}
