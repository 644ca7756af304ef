package workflows

// StateMachine enforces status transitions for a single record type
type StateMachine struct {
	initial            string
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an initial status and its allowed transitions
func NewStateMachine(initial string, transitions map[string][]string) *StateMachine {
	return &StateMachine{
		initial:            initial,
		allowedTransitions: transitions,
	}
}

// NewPlantationStateMachine returns the verification lifecycle of a plantation project.
// verified and rejected are terminal.
func NewPlantationStateMachine() *StateMachine {
	return NewStateMachine("pending", map[string][]string{
		"pending":  {"verified", "rejected"},
		"verified": {},
		"rejected": {},
	})
}

// NewEscrowStateMachine returns the forward-only escrow lifecycle of a marketplace listing
func NewEscrowStateMachine() *StateMachine {
	return NewStateMachine("pending", map[string][]string{
		"pending":  {"locked"},
		"locked":   {"released"},
		"released": {},
	})
}

// Initial returns the status every new record starts in
func (sm *StateMachine) Initial() string {
	return sm.initial
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the given status
func (sm *StateMachine) IsTerminal(status string) bool {
	allowed, exists := sm.allowedTransitions[status]
	return exists && len(allowed) == 0
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
