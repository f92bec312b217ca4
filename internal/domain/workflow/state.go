package workflow

import "fmt"

// State identifies a step of the RFQ lifecycle. Values are the identifiers
// stored in the states lookup table.
type State int64

const (
	StateSubmitted                State = 1
	StateApproved                 State = 2
	StateRejected                 State = 3
	StateRejectedByPlant          State = 4
	StateClosed                   State = 5
	StateSentToNPD                State = 8
	StateSentToVDE                State = 9
	StateSentToPE                 State = 11
	StateReviewByPlant            State = 12
	StateReviewNPD                State = 13
	StateReviewVDE                State = 14
	StateReviewPE                 State = 15
	StateSentToCommercial         State = 16
	StateSentToCommercialMgr      State = 17
	StateSentToAccountMgrReview   State = 18
	StateSentToClient             State = 19
	StateRevisionByPlant          State = 20
	StateRevisionByCommercial     State = 21
	StateSentToCommercialRevision State = 22

	// StatePaused only ever appears in audit entries written by a pause.
	StatePaused State = 100
)

var stateNames = map[State]string{
	StateSubmitted:                "Submitted",
	StateApproved:                 "Approved - Assigned to Plant",
	StateRejected:                 "Rejected",
	StateRejectedByPlant:          "Rejected by Plant",
	StateClosed:                   "Closed",
	StateSentToNPD:                "Sent to NPD Engineer",
	StateSentToVDE:                "Sent to Vendor Development Engineer",
	StateSentToPE:                 "Sent to Process Engineer",
	StateReviewByPlant:            "Review by Plant Head",
	StateReviewNPD:                "Review by NPD Engineer",
	StateReviewVDE:                "Review by Vendor Development Engineer",
	StateReviewPE:                 "Review by Process Engineer",
	StateSentToCommercial:         "Sent to Commercial Team",
	StateSentToCommercialMgr:      "Sent to Commercial Manager",
	StateSentToAccountMgrReview:   "Sent to Account Manager Review",
	StateSentToClient:             "Sent to Client",
	StateRevisionByPlant:          "Revision by Plant",
	StateRevisionByCommercial:     "Revision by Commercial",
	StateSentToCommercialRevision: "Sent to Commercial (Revision)",
	StatePaused:                   "Paused",
}

var terminalStates = map[State]bool{
	StateRejected:        true,
	StateRejectedByPlant: true,
	StateClosed:          true,
}

// IsTerminal returns true if no further transition may leave the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if an RFQ may be stored in this state
func (s State) IsValid() bool {
	_, ok := stateNames[s]
	return ok && s != StatePaused
}

// ID returns the numeric identifier persisted for the state
func (s State) ID() int64 {
	return int64(s)
}

// String returns the built-in description of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int64(s))
}

// KnownStates returns every state the transition table can refer to,
// including the paused sentinel.
func KnownStates() []State {
	states := make([]State, 0, len(stateNames))
	for s := range stateNames {
		states = append(states, s)
	}
	sortStates(states)
	return states
}
