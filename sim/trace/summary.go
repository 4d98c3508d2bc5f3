package trace

import "time"

// LogSummary aggregates statistics from an EventLog.
type LogSummary struct {
	Total     int
	Dropped   int
	ByKind    map[string]int
	BySubject map[string]int
	First     time.Time
	Last      time.Time
}

// Summarize computes aggregate statistics from an EventLog.
// Safe for nil or empty logs (returns zero-value fields).
func Summarize(l *EventLog) *LogSummary {
	summary := &LogSummary{
		ByKind:    make(map[string]int),
		BySubject: make(map[string]int),
	}
	if l == nil {
		return summary
	}
	records := l.Records()
	summary.Total = len(records)
	summary.Dropped = l.Dropped()
	for _, r := range records {
		summary.ByKind[r.Kind]++
		summary.BySubject[r.Subject]++
		if summary.First.IsZero() || r.At.Before(summary.First) {
			summary.First = r.At
		}
		if r.At.After(summary.Last) {
			summary.Last = r.At
		}
	}
	return summary
}
