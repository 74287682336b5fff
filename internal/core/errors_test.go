package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("limit exceeded"), http.StatusBadRequest},
		{"not found", NewNotFoundError("card %d not found", 7), http.StatusNotFound},
		{"conflict maps to 400", NewConflictError("already paid"), http.StatusBadRequest},
		{"wrapped", fmt.Errorf("pay invoice: %w", NewNotFoundError("no payment")), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.err); got != tc.want {
				t.Errorf("StatusOf = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(NewValidationError("bad card number")); got != "bad card number" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(errors.New("pq: disk full")); got != "internal server error" {
		t.Errorf("internal detail leaked: %q", got)
	}
}
