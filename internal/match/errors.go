package match

import "errors"

// Validation errors. These reject a command synchronously with no state
// mutation; the transport layer maps them to client-facing responses.
var (
	ErrWrongPhase          = errors.New("action not allowed in current phase")
	ErrActorDead           = errors.New("actor is not alive")
	ErrActorWrongRole      = errors.New("actor role cannot perform this action")
	ErrTargetDead          = errors.New("target is not alive")
	ErrTargetIneligible    = errors.New("target is not eligible for this action")
	ErrDuplicateSubmission = errors.New("action already submitted")
	ErrCooldown            = errors.New("cooldown has not elapsed")
	ErrTextTooLong         = errors.New("message text exceeds maximum length")
	ErrEmptyText           = errors.New("message text is empty")
	ErrMatchEnded          = errors.New("match has ended")
	ErrBadRoster           = errors.New("invalid roster")
)

// IsValidation reports whether err belongs to the validation taxonomy, as
// opposed to an internal invariant violation.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrWrongPhase, ErrActorDead, ErrActorWrongRole, ErrTargetDead,
		ErrTargetIneligible, ErrDuplicateSubmission, ErrCooldown,
		ErrTextTooLong, ErrEmptyText, ErrMatchEnded, ErrBadRoster,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
