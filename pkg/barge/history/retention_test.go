package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSweeper_SweepPrunesAgedConversations(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, 0)
	ctx := context.Background()

	id, err := store.StartConversation(ctx, "discord:123", "")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	// Age the conversation past the retention window.
	aged := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := store.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, aged, id); err != nil {
		t.Fatalf("age conversation: %v", err)
	}

	sweeper := NewSweeper(store, 24*time.Hour, nil)
	sweeper.sweep()

	if _, ok, _ := store.CurrentConversationID(ctx, "discord:123"); ok {
		t.Error("aged conversation survived the sweep")
	}
}

func TestSweeper_StartAndStop(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "history.db"), 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	sweeper := NewSweeper(store, 0, nil)
	if err := sweeper.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sweeper.Stop()
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, 0)
	sweeper := NewSweeper(store, 0, nil)
	if err := sweeper.Start("not a schedule"); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
