package workflow

import "strings"

// RevisionRoute selects who re-reviews an RFQ after a client revision request
type RevisionRoute string

const (
	RouteViaPlant      RevisionRoute = "plant"
	RouteViaCommercial RevisionRoute = "commercial"
)

// Assignee is an explicitly selected user and the role they are asked to act as
type Assignee struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// SKUSelection records whether the client accepted a priced line
type SKUSelection struct {
	SKUID    int64 `json:"sku_id"`
	Selected bool  `json:"selected"`
}

// TargetSelection carries the caller's choice of who or where a transition goes
type TargetSelection struct {
	PlantIDs      []int64        `json:"plant_ids,omitempty"`
	Assignees     []Assignee     `json:"assignees,omitempty"`
	ReviewRole    Role           `json:"review_role,omitempty"`
	RevisionRoute RevisionRoute  `json:"revision_route,omitempty"`
	SKUSelections []SKUSelection `json:"sku_selections,omitempty"`
}

// Command is one transition request. The acting user and role are always
// supplied by the caller.
type Command struct {
	RFQID        int64
	ActingUserID int64
	ActingRole   Role
	Comment      string
	Target       *TargetSelection
}

// Selection returns the target selection, or an empty one
func (c Command) Selection() TargetSelection {
	if c.Target == nil {
		return TargetSelection{}
	}
	return *c.Target
}

// HasComment reports whether a non-blank comment was supplied
func (c Command) HasComment() bool {
	return strings.TrimSpace(c.Comment) != ""
}

// SelectsRole reports whether any selected assignee holds the role
func (t TargetSelection) SelectsRole(role Role) bool {
	for _, a := range t.Assignees {
		if a.Role == role {
			return true
		}
	}
	return false
}

// AssigneesFor returns the selected assignees holding one of the roles
func (t TargetSelection) AssigneesFor(roles ...Role) []Assignee {
	var out []Assignee
	for _, a := range t.Assignees {
		for _, r := range roles {
			if a.Role == r {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// IsEmpty reports whether nothing was selected
func (t TargetSelection) IsEmpty() bool {
	return len(t.PlantIDs) == 0 && len(t.Assignees) == 0 && t.ReviewRole == "" &&
		t.RevisionRoute == "" && len(t.SKUSelections) == 0
}
