package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/relayops/chatbridge/internal/models"
)

func TestNextCronDuration(t *testing.T) {
	tests := []struct {
		name string
		expr string
		zero bool
	}{
		{"every minute", "* * * * *", false},
		{"weekday morning", "0 9 * * 1-5", false},
		{"invalid", "not a cron", true},
		{"six fields rejected", "0 0 9 * * 1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := nextCronDuration(tt.expr)
			if tt.zero && d != 0 {
				t.Errorf("nextCronDuration(%q) = %v, want 0", tt.expr, d)
			}
			if !tt.zero && d <= 0 {
				t.Errorf("nextCronDuration(%q) = %v, want > 0", tt.expr, d)
			}
		})
	}
}

func TestDigest_Build(t *testing.T) {
	db := openTestDB(t)
	gw := newMockGateway()
	d, err := NewDigest(DigestOpts{DB: db, Gateway: gw, Cron: "* * * * *"})
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}

	// Empty store: digest suppressed.
	text, err := d.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty with no unresolved threads", text)
	}

	resolvedBy := "U1"
	threads := []models.ChatThread{
		{SessionID: "42-1000", ChannelID: "C01", ThreadRef: "1.1", Status: models.StatusUnresolved, JobID: 42, UpdatedAt: time.Now().Add(-time.Hour)},
		{SessionID: "43-2000", ChannelID: "C01", ThreadRef: "1.2", Status: models.StatusResolved, ResolvedBy: &resolvedBy, JobID: 43, UpdatedAt: time.Now()},
	}
	for i := range threads {
		if err := db.Create(&threads[i]).Error; err != nil {
			t.Fatalf("seed thread: %v", err)
		}
	}

	text, err = d.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(text, "1 unresolved") {
		t.Errorf("digest header wrong: %q", text)
	}
	if !strings.Contains(text, "42-1000") || !strings.Contains(text, "#42") {
		t.Errorf("digest missing unresolved session: %q", text)
	}
	if strings.Contains(text, "43-2000") {
		t.Errorf("digest lists resolved session: %q", text)
	}
}

func TestNewDigest_Validation(t *testing.T) {
	db := openTestDB(t)
	if _, err := NewDigest(DigestOpts{Gateway: newMockGateway(), Cron: "* * * * *"}); err == nil {
		t.Error("expected error for missing db")
	}
	if _, err := NewDigest(DigestOpts{DB: db, Cron: "* * * * *"}); err == nil {
		t.Error("expected error for missing gateway")
	}
	if _, err := NewDigest(DigestOpts{DB: db, Gateway: newMockGateway()}); err == nil {
		t.Error("expected error for missing cron")
	}
}
