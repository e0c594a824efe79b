package protocol

import (
	"errors"

	"storychain/internal/domain"
)

// Error codes
const (
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
	ErrCodeRoomNotFound        = "ROOM_NOT_FOUND"
	ErrCodeDuplicateRoomCode   = "DUPLICATE_ROOM_CODE"
	ErrCodeInvalidRoomCode     = "INVALID_ROOM_CODE"
	ErrCodeRoomAlreadyStarted  = "ROOM_ALREADY_STARTED"
	ErrCodeRoomFull            = "ROOM_FULL"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidSettings     = "INVALID_SETTINGS"
	ErrCodeGameNotStarted      = "GAME_NOT_STARTED"
	ErrCodeGameNotFinished     = "GAME_NOT_FINISHED"
	ErrCodeNotYourTurn         = "NOT_YOUR_TURN"
	ErrCodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	ErrCodeRoundClosed         = "ROUND_CLOSED"
	ErrCodeUnknownOrigin       = "UNKNOWN_ORIGIN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	err     error
	code    string
	message string
}{
	{domain.ErrRoomNotFound, ErrCodeRoomNotFound, "Room not found"},
	{domain.ErrDuplicateRoomCode, ErrCodeDuplicateRoomCode, "Room code is already in use"},
	{domain.ErrInvalidRoomCode, ErrCodeInvalidRoomCode, "Room code must be 6 letters or digits"},
	{domain.ErrRoomAlreadyStarted, ErrCodeRoomAlreadyStarted, "Game has already started"},
	{domain.ErrRoomFull, ErrCodeRoomFull, "Room is full"},
	{domain.ErrUnauthorized, ErrCodeUnauthorized, "Only the first player can start the game"},
	{domain.ErrInvalidSettings, ErrCodeInvalidSettings, ""},
	{domain.ErrGameNotStarted, ErrCodeGameNotStarted, "Game has not started"},
	{domain.ErrGameNotFinished, ErrCodeGameNotFinished, "Game has not finished"},
	{domain.ErrNotYourTurn, ErrCodeNotYourTurn, "That story is not yours to write this round"},
	{domain.ErrDuplicateSubmission, ErrCodeDuplicateSubmission, "You have already submitted for that story"},
	{domain.ErrRoundClosed, ErrCodeRoundClosed, "The round is already over"},
	{domain.ErrParticipantNotFound, ErrCodeRoomNotFound, "You are not in that room"},
	{domain.ErrUnknownOrigin, ErrCodeUnknownOrigin, "Unknown story"},
}

// ErrorFor maps a domain error to its wire payload. Unknown errors become
// INTERNAL_ERROR. Messages left blank carry the error text, which already
// names the offending value.
func ErrorFor(err error) *ErrorPayload {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			message := e.message
			if message == "" {
				message = err.Error()
			}
			return &ErrorPayload{Code: e.code, Message: message}
		}
	}
	return &ErrorPayload{Code: ErrCodeInternalError, Message: "Internal error"}
}
