package guild

// Error is a domain failure with a stable numeric code. Every operation
// returns at most one of the values below; match them with errors.Is.
type Error struct {
	Code uint32
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrNotAuthorized      = &Error{Code: 100, Msg: "not authorized"}
	ErrGuildAlreadyExists = &Error{Code: 101, Msg: "guild already exists"}
	ErrGuildNotFound      = &Error{Code: 102, Msg: "guild not found"}
	ErrAlreadyMember      = &Error{Code: 103, Msg: "already a member"}
	ErrNotMember          = &Error{Code: 104, Msg: "not a member"}
	ErrInsufficientStake  = &Error{Code: 105, Msg: "insufficient stake"}
	ErrProposalNotFound   = &Error{Code: 106, Msg: "proposal not found"}
	ErrAlreadyVoted       = &Error{Code: 107, Msg: "already voted"}
	ErrVotingClosed       = &Error{Code: 108, Msg: "voting closed"}
	ErrInsufficientFunds  = &Error{Code: 109, Msg: "insufficient funds"}
	ErrInvalidPermission  = &Error{Code: 110, Msg: "invalid permission"}
	ErrProposalNotPassed  = &Error{Code: 111, Msg: "proposal not passed"}
	ErrInvalidParameter   = &Error{Code: 112, Msg: "invalid parameter"}
	ErrAssetNotFound      = &Error{Code: 404, Msg: "asset not found"}

	// ErrConflict is returned by stores that detect a concurrent write to
	// the same records and abort the unit of work.
	ErrConflict = &Error{Code: 409, Msg: "conflicting transaction"}
)
