package subproc

// NewTestGuard returns a guard without the process wide setup.
func NewTestGuard(phase string) *Guard {
	return &Guard{phase: phase}
}
