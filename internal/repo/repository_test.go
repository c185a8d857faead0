package repo_test

import (
	"testing"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/dynamo"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/memory"
	pg "github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.MonitorStore = memory.New()
	var _ repo.MonitorRegistry = memory.New()
	var _ repo.CheckStore = memory.New()
	var _ repo.IncidentStore = memory.New()

	var _ repo.MonitorStore = (*pg.Store)(nil)
	var _ repo.MonitorRegistry = (*pg.Store)(nil)
	var _ repo.CheckStore = (*pg.Store)(nil)
	var _ repo.IncidentStore = (*pg.Store)(nil)

	var _ repo.CheckStore = (*dynamo.CheckStore)(nil)
}

func TestUptimePercent(t *testing.T) {
	if got := repo.UptimePercent(0, 0); got != 100 {
		t.Fatalf("empty history should be 100, got %v", got)
	}
	if got := repo.UptimePercent(3, 4); got != 75 {
		t.Fatalf("want 75, got %v", got)
	}
}
