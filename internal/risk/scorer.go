// Package risk aggregates a job's persisted entries into one 0-100 risk
// score per user identity. Scoring runs once per job, after ingestion has
// finished, because identities are only fully known from the whole record
// set.
package risk

import (
	"github.com/google/uuid"

	"github.com/levonm80/socapp/internal/model"
)

// Per-term caps of the score formula.
const (
	anomalyWeight   = 10
	anomalyCap      = 50
	blockedWeight   = 5
	blockedCap      = 30
	maliciousWeight = 20
	maliciousCap    = 40
	maxRiskScore    = 100
)

// Calculate groups entries by user identity (department, falling back to
// client IP) and computes a capped risk score per group. Deterministic for
// a fixed input multiset.
func Calculate(jobID uuid.UUID, entries []*model.LogEntry) map[string]*model.UserRiskScore {
	scores := make(map[string]*model.UserRiskScore)

	for _, entry := range entries {
		identity := entry.UserIdentifier()
		score, ok := scores[identity]
		if !ok {
			score = &model.UserRiskScore{
				JobID:          jobID,
				UserIdentifier: identity,
				Breakdown:      make(map[string]int),
			}
			scores[identity] = score
		}

		if entry.IsAnomalous {
			score.AnomalyCount++
			kind := entry.AnomalyKind
			if kind == "" {
				kind = "unknown"
			}
			score.Breakdown[kind]++
		}
		if entry.Action == "Blocked" {
			score.BlockedCount++
		}
		if entry.AnomalyKind == model.AnomalyMaliciousDomain {
			score.MaliciousDomainCount++
		}
	}

	for _, score := range scores {
		score.RiskScore = computeScore(score.AnomalyCount, score.BlockedCount, score.MaliciousDomainCount)
	}
	return scores
}

func computeScore(anomalies, blocked, malicious int) int {
	total := capped(anomalies*anomalyWeight, anomalyCap) +
		capped(blocked*blockedWeight, blockedCap) +
		capped(malicious*maliciousWeight, maliciousCap)
	return capped(total, maxRiskScore)
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
