package statemachine

import (
	"fmt"
	"strings"
)

// InvalidTransitionError reports a rejected edge with the valid
// alternatives, so handlers can return an actionable message.
type InvalidTransitionError struct {
	Machine string
	From    string
	To      string
	Actor   string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none (terminal state)"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	if e.Actor != "" {
		return fmt.Sprintf("invalid %s transition: %s → %s is not allowed for actor '%s'. Valid transitions from %s are: %s",
			e.Machine, e.From, e.To, e.Actor, e.From, allowed)
	}
	return fmt.Sprintf("invalid %s transition: %s → %s. Valid transitions from %s are: %s",
		e.Machine, e.From, e.To, e.From, allowed)
}
