package domain

import "errors"

// Domain errors
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrDuplicateRoomCode   = errors.New("room code already in use")
	ErrInvalidRoomCode     = errors.New("room code must be 6 characters from A-Z and 0-9")
	ErrRoomAlreadyStarted  = errors.New("game already started")
	ErrRoomFull            = errors.New("room is full")
	ErrUnauthorized        = errors.New("only the first player can start the game")
	ErrInvalidSettings     = errors.New("invalid game settings")
	ErrGameNotStarted      = errors.New("game has not started")
	ErrGameNotFinished     = errors.New("game has not finished")
	ErrNotYourTurn         = errors.New("not your turn to write this story")
	ErrDuplicateSubmission = errors.New("this story already has a turn for the round")
	ErrRoundClosed         = errors.New("round is closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrUnknownOrigin       = errors.New("unknown story origin")
	ErrTurnOutOfOrder      = errors.New("turn is out of order")
	ErrStoryFinalized      = errors.New("stories are finalized")
)
