package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

type stubSource struct {
	name       string
	candidates []models.Candidate
	err        error
	delay      time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.candidates, s.err
}

func TestRunAllMergesAllSources(t *testing.T) {
	sources := []Source{
		&stubSource{name: "a", candidates: []models.Candidate{{FactID: "f1"}}},
		&stubSource{name: "b", candidates: []models.Candidate{{FactID: "f2"}, {FactID: "f3"}}},
	}

	got := RunAll(context.Background(), testLogger(), sources, Query{Text: "q"}, time.Second)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
}

func TestRunAllSurvivesFailingSource(t *testing.T) {
	sources := []Source{
		&stubSource{name: "broken", err: errors.New("backend down")},
		&stubSource{name: "ok", candidates: []models.Candidate{{FactID: "f1"}}},
	}

	got := RunAll(context.Background(), testLogger(), sources, Query{Text: "q"}, time.Second)
	if len(got) != 1 || got[0].FactID != "f1" {
		t.Fatalf("expected the healthy source's candidate, got %+v", got)
	}
}

func TestRunAllTimeboxesSlowSource(t *testing.T) {
	sources := []Source{
		&stubSource{name: "slow", delay: 500 * time.Millisecond, candidates: []models.Candidate{{FactID: "late"}}},
		&stubSource{name: "fast", candidates: []models.Candidate{{FactID: "f1"}}},
	}

	start := time.Now()
	got := RunAll(context.Background(), testLogger(), sources, Query{Text: "q"}, 50*time.Millisecond)
	elapsed := time.Since(start)

	if len(got) != 1 || got[0].FactID != "f1" {
		t.Fatalf("expected only the fast source's candidate, got %+v", got)
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("fan-out should return once the timebox fires, took %v", elapsed)
	}
}

func testLogger() *logger.Logger {
	return logger.New("test", "", "")
}
