package poller

import "github.com/Lelleck/wise/internal/rcon"

// retentionSeconds is how long a log line stays in the known set. The
// server replays the last minute of logs on every fetch; twice that is
// enough to never re-emit a line while keeping the set small.
const retentionSeconds = 120

// logWindow tracks which log lines have already been published. Lines are
// compared by value, so a replayed line is recognized even across ticks.
type logWindow struct {
	known map[rcon.LogLine]struct{}
}

func newLogWindow() *logWindow {
	return &logWindow{known: make(map[rcon.LogLine]struct{})}
}

// merge returns the lines of fetched that have not been seen before, in
// input order, then folds fetched into the known set and prunes entries
// older than the retention window relative to now (seconds since epoch).
func (w *logWindow) merge(fetched []rcon.LogLine, now uint64) []rcon.LogLine {
	var untracked []rcon.LogLine
	for _, line := range fetched {
		if _, ok := w.known[line]; !ok {
			untracked = append(untracked, line)
		}
	}
	for _, line := range fetched {
		w.known[line] = struct{}{}
	}
	for line := range w.known {
		if line.Timestamp+retentionSeconds <= now {
			delete(w.known, line)
		}
	}
	return untracked
}
