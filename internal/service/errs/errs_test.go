package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		textCode string
	}{
		{"conflict", Conflict("dup", CodeMessageConflict), http.StatusConflict, CodeMessageConflict},
		{"transient", Transient(errors.New("db down"), "failed"), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"not found", NotFound("missing"), http.StatusNotFound, CodeNotFound},
		{"bad input", BadInput("bad"), http.StatusBadRequest, CodeBadInput},
		{"contention", LeaseContention("busy"), http.StatusServiceUnavailable, CodeLeaseContention},
		{"plain", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, got)
			}

			textCode, _, _ := Envelope(tc.err)
			if textCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, textCode)
			}
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("poll: %w", Transient(errors.New("db down"), "failed"))

	if !IsTransient(wrapped) {
		t.Fatal("expected wrapped transient error to be transient")
	}
	if IsConflict(wrapped) || IsNotFound(wrapped) || IsLeaseContention(wrapped) {
		t.Fatal("expected no other classification")
	}
	if !IsLeaseContention(fmt.Errorf("poll: %w", LeaseContention("busy"))) {
		t.Fatal("expected wrapped contention error to be detected")
	}
}

func TestEnvelopeHidesInternalDetails(t *testing.T) {
	_, _, message := Envelope(errors.New("password=secret"))
	if message == "password=secret" {
		t.Fatal("expected internal error details to stay hidden")
	}
}
