package gov

import "errors"

// ErrorKind groups protocol errors by how a caller should react.
type ErrorKind string

const (
	// KindAuthorization: the caller lacks standing. Never retried.
	KindAuthorization ErrorKind = "authorization"
	// KindState: the call is out of order or repeated. Retrying unchanged
	// reproduces the error.
	KindState ErrorKind = "state"
	// KindValidation: the request itself is malformed.
	KindValidation ErrorKind = "validation"
	// KindNotFound: the referenced entity does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindExecution: a collaborator failed; the call may be retried.
	KindExecution ErrorKind = "execution"
)

// Error is a typed protocol failure. Sentinels below are compared with
// errors.Is; engines wrap them with detail.
type Error struct {
	Code string
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(code string, kind ErrorKind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

var (
	ErrNotAMember       = newError("NotAMember", KindAuthorization, "caller is not a member")
	ErrNotCounterparty  = newError("NotCounterparty", KindAuthorization, "caller is not the counterparty")
	ErrNotAParty        = newError("NotAParty", KindAuthorization, "caller is not a party to the relationship")
	ErrNotAdmin         = newError("NotAdmin", KindAuthorization, "admin access required")
	ErrWrongState       = newError("WrongState", KindState, "entity is not in the required state")
	ErrTooEarly         = newError("TooEarly", KindState, "listening period has not ended")
	ErrVotingStillOpen  = newError("VotingStillOpen", KindState, "voting period has not ended")
	ErrDuplicateResp    = newError("DuplicateResponse", KindState, "member already responded")
	ErrDuplicateVote    = newError("DuplicateVote", KindState, "member already voted")
	ErrMustListen       = newError("MustListenBeforeVoting", KindState, "member must respond during listening before voting")
	ErrAlreadyConsented = newError("AlreadyConsented", KindState, "consent already given")
	ErrRelationshipOpen = newError("RelationshipAlreadyExists", KindState, "an active relationship already exists for this pair")
	ErrNotActive        = newError("NotActive", KindState, "relationship is not active")
	ErrDuplicateConfirm = newError("DuplicateConfirmation", KindState, "member already confirmed this cooldown")
	ErrAlreadyMember    = newError("AlreadyMember", KindState, "principal is already a member")
	ErrInvalidPayload   = newError("InvalidPayload", KindValidation, "invalid payload")
	ErrNotFound         = newError("NotFound", KindNotFound, "not found")
	ErrTransferFailed   = newError("TransferFailed", KindExecution, "fund transfer failed")
)

// ErrConflict is returned by stores when a compare-and-transition write lost
// a race. Engines retry on it; it never reaches callers as a protocol error.
var ErrConflict = errors.New("concurrent modification")

// AsError extracts the protocol error from a wrapped chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Retryable reports whether the caller may retry the same call unchanged.
func Retryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindExecution
}
