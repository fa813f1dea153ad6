package metrics

import (
	"sync"
	"sync/atomic"
)

// parseStats holds counters for LLM response parsing outcomes. Kept
// simple/thread-safe for use from handlers and exposition.
type parseStats struct {
	total     uint64
	plainText uint64
}

// dispatchStats holds counters for execution verdicts keyed by outcome
// ("success", "failed", "refused").
type dispatchStats struct {
	total     uint64
	mu        sync.Mutex
	byVerdict map[string]uint64
}

var (
	parse    parseStats
	dispatch dispatchStats
)

// IncParse records one parsed LLM turn.
func IncParse(plainText bool) {
	atomic.AddUint64(&parse.total, 1)
	if plainText {
		atomic.AddUint64(&parse.plainText, 1)
	}
}

// ParseSnapshot returns the current parse counters.
func ParseSnapshot() (total, plainText uint64) {
	return atomic.LoadUint64(&parse.total), atomic.LoadUint64(&parse.plainText)
}

// IncDispatch increments the dispatch counter for the given verdict.
func IncDispatch(verdict string) {
	if verdict == "" {
		verdict = "unknown"
	}
	atomic.AddUint64(&dispatch.total, 1)
	dispatch.mu.Lock()
	if dispatch.byVerdict == nil {
		dispatch.byVerdict = make(map[string]uint64)
	}
	dispatch.byVerdict[verdict]++
	dispatch.mu.Unlock()
}

// DispatchSnapshot returns a copy of the current dispatch counters.
func DispatchSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&dispatch.total)
	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()
	by = make(map[string]uint64, len(dispatch.byVerdict))
	for k, v := range dispatch.byVerdict {
		by[k] = v
	}
	return total, by
}
