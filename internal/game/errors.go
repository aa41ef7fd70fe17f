package game

import "errors"

// Kind separates errors a player can fix from failures of the engine itself.
type Kind int

const (
	KindUser Kind = iota + 1
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Rejection reasons. Match with errors.Is.
var (
	ErrIllegalMove      = errors.New("move is not available from the current space")
	ErrMoveRequired     = errors.New("select a move before ending the turn")
	ErrRequirementUnmet = errors.New("space requirements are not met")
	ErrRollRequired     = errors.New("roll the dice before ending the turn")
	ErrNotYourTurn      = errors.New("not this player's turn")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrPlayerFinished   = errors.New("player has finished")
	ErrGameEnded        = errors.New("game has ended")
	ErrNoGame           = errors.New("no game in progress")
	ErrInvalidRoster    = errors.New("invalid player roster")
	ErrNoRollRequired   = errors.New("no roll required at this space")
	ErrAlreadyRolled    = errors.New("all required rolls are done")
	ErrCannotNegotiate  = errors.New("negotiation is not allowed at this space")
	ErrCardNotHeld      = errors.New("card is not held by the player")
	ErrCardNotPlayable  = errors.New("card cannot be played here")
	ErrDeckEmpty        = errors.New("no matching card left in the deck")
	ErrStorage          = errors.New("state could not be saved")
	ErrNotReady         = errors.New("board is not ready")
)

// ActionError is returned by every engine action.
type ActionError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ActionError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsUserError reports whether err is a rejection the player can act on.
func IsUserError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae) && ae.Kind == KindUser
}

func userErr(op string, err error) error {
	return &ActionError{Kind: KindUser, Op: op, Err: err}
}

func internalErr(op string, err error) error {
	return &ActionError{Kind: KindInternal, Op: op, Err: err}
}
