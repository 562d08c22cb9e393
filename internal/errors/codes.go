// Package errors provides structured error handling for the duel subsystem.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Challenge validation errors
	CodeChallengeInvalidBet       Code = "CHALLENGE_INVALID_BET"
	CodeChallengeSameParticipants Code = "CHALLENGE_SAME_PARTICIPANTS"
	CodeChallengeEmptyParticipant Code = "CHALLENGE_EMPTY_PARTICIPANT"
	CodeChallengeInvalidChoice    Code = "CHALLENGE_INVALID_CHOICE"
	CodeChallengeEmptyDisplayName Code = "CHALLENGE_EMPTY_DISPLAY_NAME"

	// Lifecycle errors
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeForbidden           Code = "FORBIDDEN"
	CodeAlreadyMoved        Code = "ALREADY_MOVED"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeChallengeInvalidBet,
		CodeChallengeSameParticipants,
		CodeChallengeEmptyParticipant,
		CodeChallengeInvalidChoice,
		CodeChallengeEmptyDisplayName:
		return codes.InvalidArgument
	case CodeInvalidTransition, CodeAlreadyMoved, CodeInsufficientFunds:
		return codes.FailedPrecondition
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeConcurrencyConflict:
		return codes.Aborted
	case CodeNotFound:
		return codes.NotFound
	case CodeAlreadyExists:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}
