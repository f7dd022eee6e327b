package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lelleck/wise/internal/rcon"
)

func line(ts uint64, mapName string) rcon.LogLine {
	return rcon.LogLine{Timestamp: ts, Kind: rcon.MatchStartKind{Map: mapName}}
}

func TestMergeReportsOnlyUnseenLines(t *testing.T) {
	w := newLogWindow()
	lines := []rcon.LogLine{line(100, "a"), line(101, "b"), line(102, "c")}

	untracked := w.merge(lines, 102)
	assert.Equal(t, lines, untracked)

	untracked = w.merge(lines, 103)
	assert.Empty(t, untracked)
}

func TestMergeIsIdempotent(t *testing.T) {
	w := newLogWindow()
	lines := []rcon.LogLine{line(100, "a"), line(101, "b")}

	w.merge(lines, 101)
	before := len(w.known)

	untracked := w.merge(lines, 101)
	assert.Empty(t, untracked)
	assert.Equal(t, before, len(w.known))
}

func TestMergePreservesInputOrder(t *testing.T) {
	w := newLogWindow()
	w.merge([]rcon.LogLine{line(100, "a")}, 100)

	untracked := w.merge([]rcon.LogLine{line(100, "a"), line(101, "b"), line(102, "c")}, 102)
	require.Len(t, untracked, 2)
	assert.Equal(t, line(101, "b"), untracked[0])
	assert.Equal(t, line(102, "c"), untracked[1])
}

func TestMergePrunesOldEntries(t *testing.T) {
	w := newLogWindow()
	w.merge([]rcon.LogLine{line(100, "a"), line(150, "b")}, 150)

	// 121 seconds later the first line has aged out of the window.
	w.merge([]rcon.LogLine{line(221, "c")}, 221)

	assert.Len(t, w.known, 2)
	_, hasOld := w.known[line(100, "a")]
	assert.False(t, hasOld)
	_, hasNewer := w.known[line(150, "b")]
	assert.True(t, hasNewer)
}

func TestPrunedLineCanReappearAsUntracked(t *testing.T) {
	// A line outside the retention window is forgotten; the ticks are
	// 1s apart in practice so this only matters for clock jumps.
	w := newLogWindow()
	w.merge([]rcon.LogLine{line(100, "a")}, 100)
	w.merge(nil, 300)

	untracked := w.merge([]rcon.LogLine{line(100, "a")}, 300)
	require.Len(t, untracked, 1)
}

func TestDistinctKindsWithSameTimestampAreDistinct(t *testing.T) {
	w := newLogWindow()
	kill := rcon.LogLine{Timestamp: 100, Kind: rcon.KillKind{
		Killer: rcon.Player{Name: "A", ID: rcon.SteamID(1)},
		Victim: rcon.Player{Name: "B", ID: rcon.SteamID(2)},
		Weapon: "M1 GARAND",
	}}
	chat := rcon.LogLine{Timestamp: 100, Kind: rcon.ChatKind{
		Sender:  rcon.Player{Name: "A", ID: rcon.SteamID(1)},
		Content: "hello",
	}}

	untracked := w.merge([]rcon.LogLine{kill, chat}, 100)
	assert.Len(t, untracked, 2)
}
