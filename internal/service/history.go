package service

import "github.com/levonm80/socapp/internal/parser"

// clientHistory keeps a bounded rolling window of recent entries per client
// IP for the burst rule. Only the ingestion goroutine of one job touches it,
// so no locking is needed.
type clientHistory struct {
	depth    int
	byClient map[string][]*parser.Entry
}

func newClientHistory(depth int) *clientHistory {
	return &clientHistory{
		depth:    depth,
		byClient: make(map[string][]*parser.Entry),
	}
}

// get returns the window for a client. Callers must not mutate it.
func (h *clientHistory) get(clientIP string) []*parser.Entry {
	return h.byClient[clientIP]
}

// add appends an entry to the client's window, evicting the oldest entry
// once the window is full.
func (h *clientHistory) add(clientIP string, e *parser.Entry) {
	window := append(h.byClient[clientIP], e)
	if len(window) > h.depth {
		window = window[len(window)-h.depth:]
	}
	h.byClient[clientIP] = window
}
