package store

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	t.Run("valid prefix", func(t *testing.T) {
		id, err := GenerateID(BoardIDPrefix, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(id) != len(BoardIDPrefix)+1+idHashLength {
			t.Fatalf("unexpected length %d: %s", len(id), id)
		}
		if !strings.HasPrefix(id, "bd-") {
			t.Fatalf("expected prefix bd-, got %s", id)
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		if _, err := GenerateID("", nil); err == nil {
			t.Fatal("expected error for empty prefix")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(id string) (bool, error) {
			calls++
			return calls < 3, nil
		}
		id, err := GenerateID(BoardIDPrefix, exists)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if calls != 3 {
			t.Fatalf("expected 3 exists calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		_, err := GenerateID(BoardIDPrefix, func(string) (bool, error) { return true, nil })
		if err == nil {
			t.Fatal("expected exhaustion error")
		}
	})

	t.Run("propagates exists error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := GenerateID(BoardIDPrefix, func(string) (bool, error) { return false, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})
}
