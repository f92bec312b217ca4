package workflow

// Role is the actor type a caller acts as. A user holds exactly one role.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleAccountManager    Role = "account_manager"
	RolePlantHead         Role = "plant_head"
	RoleNPDEngineer       Role = "npd_engineer"
	RoleVendorEngineer    Role = "vendor_engineer"
	RoleProcessEngineer   Role = "process_engineer"
	RoleCommercialTeam    Role = "commercial_team"
	RoleCommercialManager Role = "commercial_manager"
	RoleClient            Role = "client"
)

var validRoles = map[Role]bool{
	RoleAdmin:             true,
	RoleAccountManager:    true,
	RolePlantHead:         true,
	RoleNPDEngineer:       true,
	RoleVendorEngineer:    true,
	RoleProcessEngineer:   true,
	RoleCommercialTeam:    true,
	RoleCommercialManager: true,
	RoleClient:            true,
}

// EngineerRoles lists the roles a plant head can fan an RFQ out to, in
// the order their states are reached.
var EngineerRoles = []Role{RoleNPDEngineer, RoleVendorEngineer, RoleProcessEngineer}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsEngineer returns true for NPD, vendor development and process engineers
func (r Role) IsEngineer() bool {
	for _, e := range EngineerRoles {
		if r == e {
			return true
		}
	}
	return false
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
