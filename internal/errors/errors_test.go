package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	first := New(CodeAlreadyMoved, "player already submitted a choice")
	second := New(CodeAlreadyMoved, "different message, same code")

	if !errors.Is(first, second) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(first, New(CodeForbidden, "caller is not a participant")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("row scan failed")
	wrapped := Wrap(CodeNotFound, "challenge not found", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error to unwrap to the cause")
	}
	if GetCode(wrapped) != CodeNotFound {
		t.Fatalf("code = %q, want %q", GetCode(wrapped), CodeNotFound)
	}
}

func TestGetCodeForUnknownError(t *testing.T) {
	if got := GetCode(fmt.Errorf("plain error")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
	if GetCode(nil) != CodeUnknown {
		t.Fatal("expected nil error to map to unknown code")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeChallengeInvalidBet, codes.InvalidArgument},
		{CodeChallengeSameParticipants, codes.InvalidArgument},
		{CodeInvalidTransition, codes.FailedPrecondition},
		{CodeAlreadyMoved, codes.FailedPrecondition},
		{CodeInsufficientFunds, codes.FailedPrecondition},
		{CodeForbidden, codes.PermissionDenied},
		{CodeConcurrencyConflict, codes.Aborted},
		{CodeNotFound, codes.NotFound},
		{CodeAlreadyExists, codes.AlreadyExists},
		{CodeUnknown, codes.Internal},
	}

	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("GRPCCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestHandleErrorAttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeForbidden, "caller is not the opponent", map[string]string{
		"challenge_id": "ch-1",
		"caller_id":    "user-3",
	})

	st, ok := status.FromError(HandleError(err))
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.PermissionDenied)
	}

	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if d, ok := detail.(*errdetails.ErrorInfo); ok {
			info = d
		}
	}
	if info == nil {
		t.Fatal("expected ErrorInfo detail")
	}
	if info.GetReason() != string(CodeForbidden) {
		t.Fatalf("reason = %q, want %q", info.GetReason(), CodeForbidden)
	}
	if info.GetMetadata()["challenge_id"] != "ch-1" {
		t.Fatalf("metadata challenge_id = %q, want ch-1", info.GetMetadata()["challenge_id"])
	}
}

func TestHandleErrorUnknown(t *testing.T) {
	st, ok := status.FromError(HandleError(fmt.Errorf("boom")))
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.Internal {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.Internal)
	}
	if HandleError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
