// Package detector evaluates parsed proxy events against an ordered table
// of heuristic rules. Each rule carries a fixed confidence; when several
// rules fire on one event the highest confidence wins, earlier table
// entries winning ties.
package detector

import (
	"fmt"
	"strings"

	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/parser"
)

// Verdict is the detector's output for one event.
type Verdict struct {
	IsAnomalous bool
	Kind        string
	Reason      string
	Confidence  float64
}

// rule couples an anomaly kind with its confidence and match predicate.
// The predicate returns the human-readable reason naming the triggering
// value. Predicates never mutate the event or its history.
type rule struct {
	kind       string
	confidence float64
	match      func(d *Detector, e *parser.Entry, history []*parser.Entry) (string, bool)
}

// Detector holds the compiled rule table. Safe for concurrent use: all
// state is read-only after New.
type Detector struct {
	cfg        Config
	domains    map[string]struct{}
	categories map[string]struct{}
	rules      []rule
}

// New compiles a detector from the given config.
func New(cfg Config) *Detector {
	d := &Detector{
		cfg:        cfg,
		domains:    make(map[string]struct{}, len(cfg.MaliciousDomains)),
		categories: make(map[string]struct{}, len(cfg.RiskyCategories)),
	}
	for _, dom := range cfg.MaliciousDomains {
		d.domains[dom] = struct{}{}
	}
	for _, cat := range cfg.RiskyCategories {
		d.categories[cat] = struct{}{}
	}

	// Evaluation order is part of the contract: it breaks confidence ties.
	d.rules = []rule{
		{model.AnomalyMaliciousDomain, 0.95, (*Detector).matchMaliciousDomain},
		{model.AnomalyRiskyCategory, 0.70, (*Detector).matchRiskyCategory},
		{model.AnomalyUnusualUA, 0.60, (*Detector).matchUnusualUA},
		{model.AnomalyLargeDownload, 0.65, (*Detector).matchLargeDownload},
		{model.AnomalyBurstBlocked, 0.80, (*Detector).matchBurstBlocked},
	}
	return d
}

// Detect evaluates every rule against the event and returns the single
// winning verdict, or a non-anomalous verdict when no rule matches.
// history is the caller-maintained rolling window for the event's client.
func (d *Detector) Detect(e *parser.Entry, history []*parser.Entry) Verdict {
	var best Verdict
	for _, r := range d.rules {
		reason, ok := r.match(d, e, history)
		if !ok {
			continue
		}
		if !best.IsAnomalous || r.confidence > best.Confidence {
			best = Verdict{
				IsAnomalous: true,
				Kind:        r.kind,
				Reason:      reason,
				Confidence:  r.confidence,
			}
		}
	}
	return best
}

func (d *Detector) matchMaliciousDomain(e *parser.Entry, _ []*parser.Entry) (string, bool) {
	if _, ok := d.domains[e.Domain]; !ok {
		return "", false
	}
	return fmt.Sprintf("Domain %s is in malicious domains list", e.Domain), true
}

func (d *Detector) matchRiskyCategory(e *parser.Entry, _ []*parser.Entry) (string, bool) {
	if _, ok := d.categories[e.URLCat]; !ok {
		return "", false
	}
	return fmt.Sprintf("URL category '%s' is considered risky", e.URLCat), true
}

func (d *Detector) matchUnusualUA(e *parser.Entry, _ []*parser.Entry) (string, bool) {
	for _, pattern := range d.cfg.UnusualUAPatterns {
		if strings.Contains(e.UserAgent, pattern) {
			return fmt.Sprintf("Unusual user agent detected: %s", pattern), true
		}
	}
	return "", false
}

func (d *Detector) matchLargeDownload(e *parser.Entry, _ []*parser.Entry) (string, bool) {
	if e.RespSize <= d.cfg.LargeDownloadBytes {
		return "", false
	}
	sizeMB := float64(e.RespSize) / (1024 * 1024)
	return fmt.Sprintf("Large download detected: %.2f MB", sizeMB), true
}

// matchBurstBlocked fires when the current blocked event plus the blocked
// history entries inside the trailing window reach the threshold. History
// entries sitting exactly on the window boundary count.
func (d *Detector) matchBurstBlocked(e *parser.Entry, history []*parser.Entry) (string, bool) {
	if e.Action != "Blocked" {
		return "", false
	}

	windowStart := e.Timestamp.Add(-d.cfg.BurstWindow)
	count := 1 // the current event
	for _, h := range history {
		if h.Timestamp.Before(windowStart) || h.Action != "Blocked" {
			continue
		}
		if h.ClientIP == e.ClientIP || h.Department == e.Department {
			count++
		}
	}

	if count < d.cfg.BurstThreshold {
		return "", false
	}
	return fmt.Sprintf("Burst of %d blocked requests from %s in %d-minute window",
		count, e.ClientIP, int(d.cfg.BurstWindow.Minutes())), true
}
