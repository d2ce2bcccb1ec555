package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "order version conflict",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "product version conflict",
			err:  ErrProductVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "idempotency already exists", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "idempotency hash mismatch", err: ErrIdempotencyHashMismatch, want: true},
		{name: "wrapped idempotency conflict", err: errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")), want: true},
		{name: "non idempotency error", err: ErrOrderVersionConflict, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tt.err); got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err   error
		class error
	}{
		{ErrCustomerIDInvalid, ErrInvalidInput},
		{ErrItemQtyInvalid, ErrInvalidInput},
		{ErrPercentageInvalid, ErrInvalidInput},
		{ErrStatusInvalid, ErrInvalidInput},
		{ErrOrderNotFound, ErrNotFound},
		{ErrProductNotFound, ErrNotFound},
		{ErrOrderLineNotFound, ErrNotFound},
		{ErrInvalidTransition, ErrPrecondition},
		{ErrInsufficientStock, ErrPrecondition},
		{ErrLineQuantityExceeded, ErrPrecondition},
		{ErrProductVersionConflict, ErrConflict},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.class) {
			t.Errorf("%q should be of kind %q", tt.err, tt.class)
		}
		wrapped := fmt.Errorf("outer: %w", tt.err)
		if !errors.Is(wrapped, tt.err) || !errors.Is(wrapped, tt.class) {
			t.Errorf("wrapped %q lost its identity", tt.err)
		}
	}

	if errors.Is(ErrOrderNotFound, ErrInvalidInput) {
		t.Error("not found must be distinguishable from invalid input")
	}
}

func TestProductError(t *testing.T) {
	err := ProductError("p-1", ErrInsufficientStock)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err.Error() != "product p-1: insufficient stock" {
		t.Fatalf("unexpected message: %s", err)
	}
}
