package interactions

import (
	"context"
	"errors"
	"testing"
)

func TestConsumeRejectsMalformedID(t *testing.T) {
	s := NewService(nil, nil, nil, nil, nil)
	for _, id := range []string{"not-a-uuid", "123", "'; DROP TABLE users;--"} {
		err := s.Consume(context.Background(), id, "bot-1")
		if !errors.Is(err, ErrBadInteractionID) {
			t.Fatalf("Consume(%q) = %v, want ErrBadInteractionID", id, err)
		}
	}
}
