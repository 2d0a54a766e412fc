package game

import "fmt"

// Validation codes sent to clients in move_error.
const (
	CodeNotYourTurn     = "not_your_turn"
	CodeIllegalCell     = "illegal_cell"
	CodeOutOfBounds     = "out_of_bounds"
	CodeOverlappingShip = "overlapping_ship"
	CodeDuplicateGuess  = "duplicate_guess"
	CodeWrongPhase      = "wrong_phase"
	CodeInvalidMove     = "invalid_move"
)

// MoveError is a rule validation failure. It never leaves state modified.
type MoveError struct {
	Code    string
	Message string
}

func (e *MoveError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches any MoveError with the same code, so errors.Is works against
// the sentinel values below.
func (e *MoveError) Is(target error) bool {
	t, ok := target.(*MoveError)
	return ok && t.Code == e.Code
}

var (
	ErrNotYourTurn     = &MoveError{Code: CodeNotYourTurn}
	ErrIllegalCell     = &MoveError{Code: CodeIllegalCell}
	ErrOutOfBounds     = &MoveError{Code: CodeOutOfBounds}
	ErrOverlappingShip = &MoveError{Code: CodeOverlappingShip}
	ErrDuplicateGuess  = &MoveError{Code: CodeDuplicateGuess}
	ErrWrongPhase      = &MoveError{Code: CodeWrongPhase}
	ErrInvalidMove     = &MoveError{Code: CodeInvalidMove}
)

func moveErr(code, format string, args ...any) *MoveError {
	return &MoveError{Code: code, Message: fmt.Sprintf(format, args...)}
}
