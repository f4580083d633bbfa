package main

import (
	"testing"
	"time"

	"slide-sync/internal/slidesync"
)

func TestSyncConfigFromEnv_defaults(t *testing.T) {
	for _, k := range []string{"SYNC_INTERVAL_MS", "SYNC_PRELOAD_MS", "SYNC_DELAY_MS", "SYNC_SMOOTH_TRANSITION", "SYNC_TRANSITION_MS", "SYNC_STALE_AFTER_MS", "DECK_FETCH_TIMEOUT_MS", "DECK_MAX_BYTES"} {
		t.Setenv(k, "")
	}
	if got := syncConfigFromEnv(); got != slidesync.DefaultSyncConfig() {
		t.Errorf("syncConfigFromEnv() = %+v, want defaults", got)
	}
}

func TestSyncConfigFromEnv(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_MS", "250")
	t.Setenv("SYNC_PRELOAD_MS", "500")
	t.Setenv("SYNC_DELAY_MS", "100")
	t.Setenv("SYNC_SMOOTH_TRANSITION", "false")
	t.Setenv("SYNC_TRANSITION_MS", "not-a-number")
	t.Setenv("SYNC_STALE_AFTER_MS", "-5")
	t.Setenv("DECK_MAX_BYTES", "1024")

	got := syncConfigFromEnv()
	if got.SyncInterval != 250*time.Millisecond {
		t.Errorf("SyncInterval %v", got.SyncInterval)
	}
	if got.PreloadTime != 500*time.Millisecond || got.DelayTime != 100*time.Millisecond {
		t.Errorf("offsets %v %v", got.PreloadTime, got.DelayTime)
	}
	if got.SmoothTransition {
		t.Error("SmoothTransition should be false")
	}
	if got.DefaultTransitionDuration != slidesync.DefaultTransitionDuration {
		t.Errorf("invalid value should fall back, got %v", got.DefaultTransitionDuration)
	}
	if got.StaleAfter != slidesync.DefaultStaleAfter {
		t.Errorf("negative value should fall back, got %v", got.StaleAfter)
	}
	if got.MaxDeckBytes != 1024 {
		t.Errorf("MaxDeckBytes %d", got.MaxDeckBytes)
	}
}
