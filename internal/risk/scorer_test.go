package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/levonm80/socapp/internal/model"
)

var t0 = time.Date(2022, time.June, 20, 12, 0, 0, 0, time.UTC)

func makeEntry(dept, clientIP, action string, anomalyKind string) *model.LogEntry {
	e := &model.LogEntry{
		ID:         uuid.New(),
		Timestamp:  t0,
		Department: dept,
		ClientIP:   clientIP,
		Action:     action,
	}
	if anomalyKind != "" {
		e.IsAnomalous = true
		e.AnomalyKind = anomalyKind
	}
	return e
}

func TestCalculateCappedFormula(t *testing.T) {
	jobID := uuid.New()

	// 10 anomalies, 20 blocked, 5 malicious-domain hits: every term hits
	// its cap and the total saturates at 100.
	var entries []*model.LogEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, makeEntry("Engineering", "10.0.0.5", "Blocked", model.AnomalyMaliciousDomain))
	}
	for i := 0; i < 5; i++ {
		entries = append(entries, makeEntry("Engineering", "10.0.0.5", "Blocked", model.AnomalyRiskyCategory))
	}
	for i := 0; i < 10; i++ {
		entries = append(entries, makeEntry("Engineering", "10.0.0.5", "Blocked", ""))
	}

	scores := Calculate(jobID, entries)
	score, ok := scores["Engineering"]
	if !ok {
		t.Fatalf("missing Engineering score, got %v", scores)
	}
	if score.AnomalyCount != 10 || score.BlockedCount != 20 || score.MaliciousDomainCount != 5 {
		t.Fatalf("counts = %d/%d/%d, want 10/20/5",
			score.AnomalyCount, score.BlockedCount, score.MaliciousDomainCount)
	}
	if score.RiskScore != 100 {
		t.Errorf("risk score = %d, want 100", score.RiskScore)
	}
	if score.Breakdown[model.AnomalyMaliciousDomain] != 5 || score.Breakdown[model.AnomalyRiskyCategory] != 5 {
		t.Errorf("breakdown = %v", score.Breakdown)
	}
}

func TestCalculatePartialScore(t *testing.T) {
	jobID := uuid.New()
	entries := []*model.LogEntry{
		makeEntry("Sales", "10.0.0.9", "Blocked", model.AnomalyUnusualUA),
		makeEntry("Sales", "10.0.0.9", "Allowed", ""),
	}

	scores := Calculate(jobID, entries)
	score := scores["Sales"]
	if score == nil {
		t.Fatal("missing Sales score")
	}
	// 1 anomaly (10) + 1 blocked (5) + 0 malicious = 15.
	if score.RiskScore != 15 {
		t.Errorf("risk score = %d, want 15", score.RiskScore)
	}
}

func TestCalculateIdentityFallback(t *testing.T) {
	jobID := uuid.New()
	entries := []*model.LogEntry{
		makeEntry("", "10.0.0.7", "Allowed", ""),
		makeEntry("Engineering", "10.0.0.7", "Allowed", ""),
	}

	scores := Calculate(jobID, entries)
	if len(scores) != 2 {
		t.Fatalf("got %d identities, want 2: %v", len(scores), scores)
	}
	if scores["10.0.0.7"] == nil || scores["Engineering"] == nil {
		t.Errorf("identities = %v, want client IP fallback and department", scores)
	}
}

func TestCalculateZeroAnomalies(t *testing.T) {
	jobID := uuid.New()
	entries := []*model.LogEntry{
		makeEntry("Ops", "10.0.0.1", "Allowed", ""),
		makeEntry("Ops", "10.0.0.1", "Allowed", ""),
	}

	scores := Calculate(jobID, entries)
	score := scores["Ops"]
	if score == nil {
		t.Fatal("missing Ops score")
	}
	if score.RiskScore != 0 || score.AnomalyCount != 0 || len(score.Breakdown) != 0 {
		t.Errorf("clean traffic produced score %+v", score)
	}
}

func TestCalculateEmptyInput(t *testing.T) {
	scores := Calculate(uuid.New(), nil)
	if len(scores) != 0 {
		t.Errorf("expected empty map, got %v", scores)
	}
}
