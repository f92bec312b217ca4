package workflow

// Rule is the definition of one business transition: who may fire it, what
// it requires and which side effects it carries. Where it may be fired from
// and where it leads are configured per state on the builder.
type Rule struct {
	Trigger         Trigger
	Name            string
	Roles           []Role
	RequiresComment bool
	RequiresTarget  bool
	Effects         []Effect

	// KeepsState rules are legal from any state and never move the RFQ
	KeepsState bool
}

// Allows reports whether the role may fire the rule
func (r Rule) Allows(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Reactivates reports whether the rule sets the RFQ active again
func (r Rule) Reactivates() bool {
	for _, eff := range r.Effects {
		if sa, ok := eff.(SetActive); ok && sa.Active {
			return true
		}
	}
	return false
}
