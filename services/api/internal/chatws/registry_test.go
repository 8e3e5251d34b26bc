package chatws

import (
	"errors"
	"testing"
)

func TestRegistrySendUnknown(t *testing.T) {
	r := NewRegistry()
	if err := r.Send("nope", map[string]string{}); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
	r.Remove("nope")
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}
