package tournament

import "errors"

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrTournamentStarted  = errors.New("tournament already started")
	ErrTournamentOver     = errors.New("tournament is over")
	ErrNameTaken          = errors.New("name already entered")
	ErrNotCreator         = errors.New("only the creator can do that")
	ErrNotEnoughEntrants  = errors.New("tournament needs a full field to start")
	ErrInvalidSize        = errors.New("tournament size must be 4, 8 or 16")
	ErrInvalidGameType    = errors.New("invalid tournament game type")
	// ErrBracketCorrupt aborts the tournament it was raised for.
	ErrBracketCorrupt = errors.New("bracket corrupt")
)
