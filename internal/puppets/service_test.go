package puppets

import (
	"slices"
	"testing"
	"time"
)

func TestRecipientsForOpenPuppetUsesRecencyWindow(t *testing.T) {
	now := time.Now()
	p := Puppet{VisibilityMode: VisibilityOpen, RecentHandlerWindowHours: 24}
	handlers := []Handler{
		{UserID: "fresh", HandlerType: HandlerRecent, LastUsed: now.Add(-time.Hour)},
		{UserID: "stale", HandlerType: HandlerRecent, LastUsed: now.Add(-25 * time.Hour)},
		{UserID: "claimed-old", HandlerType: HandlerClaimed, LastUsed: now.Add(-48 * time.Hour)},
	}

	got := recipientsFor(p, handlers, now)
	if !slices.Contains(got, "fresh") {
		t.Fatalf("expected fresh handler in %v", got)
	}
	if slices.Contains(got, "stale") {
		t.Fatalf("did not expect stale handler in %v", got)
	}
	// Open mode still applies the window to claimed handlers' last use.
	if slices.Contains(got, "claimed-old") {
		t.Fatalf("did not expect window-expired handler in %v", got)
	}
}

func TestRecipientsForClaimedPuppetIgnoresRecentHandlers(t *testing.T) {
	now := time.Now()
	p := Puppet{VisibilityMode: VisibilityClaimed, RecentHandlerWindowHours: 24}
	handlers := []Handler{
		{UserID: "recent", HandlerType: HandlerRecent, LastUsed: now},
		{UserID: "owner", HandlerType: HandlerClaimed, LastUsed: now.Add(-300 * time.Hour)},
	}

	got := recipientsFor(p, handlers, now)
	if !slices.Equal(got, []string{"owner"}) {
		t.Fatalf("expected only claimed handler, got %v", got)
	}
}

func TestRecipientsForNoHandlers(t *testing.T) {
	p := Puppet{VisibilityMode: VisibilityOpen, RecentHandlerWindowHours: 24}
	if got := recipientsFor(p, nil, time.Now()); len(got) != 0 {
		t.Fatalf("expected no recipients, got %v", got)
	}
}
