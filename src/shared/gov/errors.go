package gov

import (
	"errors"
	"fmt"
)

// Classes of failure. Typed errors below match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrExternal   = errors.New("external collaborator failed")
)

// ValidationError is a rejected input: no state was changed.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

// ConflictError is a rejected transition against existing state.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	t, ok := target.(*ConflictError)
	return ok && t.Code == e.Code
}

// ExternalError wraps a gateway or notifier failure. It is logged, never
// returned from a governance transition.
type ExternalError struct {
	Op      string
	GuildID string
	UserID  string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s guild=%s user=%s: %v", e.Op, e.GuildID, e.UserID, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func (e *ExternalError) Is(target error) bool { return target == ErrExternal }

// ScanError is one guild's failure inside a periodic pass.
type ScanError struct {
	GuildID string
	Label   string
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s scan guild %s: %v", e.Label, e.GuildID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Validation builds a ValidationError with a formatted message.
func Validation(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError with a formatted message.
func Conflict(code, format string, args ...any) error {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Codes shared between engines and the command surface.
var (
	ErrNoProfile        = &ValidationError{Code: "no_profile", Message: "member profile not found"}
	ErrIneligible       = &ValidationError{Code: "ineligible", Message: "eligibility scores below the required minimum"}
	ErrBadCohort        = &ValidationError{Code: "bad_cohort", Message: "cohort could not be resolved"}
	ErrWrongPhase       = &ValidationError{Code: "wrong_phase", Message: "election is not in the required phase"}
	ErrDeadlinePassed   = &ValidationError{Code: "deadline_passed", Message: "deadline has passed"}
	ErrNoCandidates     = &ValidationError{Code: "no_candidates", Message: "no approved candidates"}
	ErrUnknownCandidate = &ValidationError{Code: "unknown_candidate", Message: "no approved candidate with that code"}
	ErrCandidateVoter   = &ValidationError{Code: "candidate_voter", Message: "candidates cannot vote in their own election"}
	ErrNotOngoing       = &ValidationError{Code: "not_ongoing", Message: "proceeding is no longer accepting ballots"}
	ErrTenureTooShort   = &ValidationError{Code: "tenure", Message: "administrator tenure is below the required minimum"}
	ErrNotAdministrator = &ValidationError{Code: "not_admin", Message: "user is not an active administrator"}
	ErrCohortFull       = &ValidationError{Code: "cohort_full", Message: "cohort has no free candidate codes"}
	ErrNotPermitted     = &ValidationError{Code: "not_permitted", Message: "you are not permitted to do that"}

	ErrElectionActive     = &ConflictError{Code: "election_active", Message: "an election is already running in this guild"}
	ErrAlreadyRegistered  = &ConflictError{Code: "already_registered", Message: "already registered as a candidate"}
	ErrAlreadyVoted       = &ConflictError{Code: "already_voted", Message: "ballot already cast"}
	ErrProceedingOngoing  = &ConflictError{Code: "proceeding_ongoing", Message: "a proceeding against this administrator is already ongoing"}
	ErrSeatCeiling        = &ConflictError{Code: "seat_ceiling", Message: "administrator ceiling reached"}
	ErrSeatTaken          = &ConflictError{Code: "seat_taken", Message: "cohort seat already held"}
	ErrImpeachCooldown    = &ConflictError{Code: "cooldown", Message: "a failed impeachment against this administrator is still in cooldown"}
	ErrInitiatorRateLimit = &ConflictError{Code: "rate_limited", Message: "too many impeachments initiated recently"}
)

// IsUserFacing reports whether err should be shown verbatim to the invoker.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}
