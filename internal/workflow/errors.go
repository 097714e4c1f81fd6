package workflow

import (
	"fmt"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

// IllegalTransitionError indicates the action is not defined for the request's
// current status (or its branch condition does not hold).
type IllegalTransitionError struct {
	Status domain.Status
	Action domain.Action
	Reason string
}

func (e IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("action %s is not legal from status %s: %s", e.Action, e.Status, e.Reason)
	}
	return fmt.Sprintf("action %s is not legal from status %s", e.Action, e.Status)
}

// AuthorizationError indicates the actor's role set does not permit the action
// at the request's current status. The reason is always specific.
type AuthorizationError struct {
	Roles  []domain.Role
	Status domain.Status
	Action domain.Action
	Reason string
}

func (e AuthorizationError) Error() string {
	return e.Reason
}
