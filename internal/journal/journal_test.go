// =============================
// File: internal/journal/journal_test.go
// =============================

package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/core"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndReadBack(t *testing.T) {
	j := openTemp(t)

	ev := core.NewEvent(core.EvBuy, 7, map[string]interface{}{
		"pool":  "0xabc",
		"value": "1000",
	})
	j.Record(ev)

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev.ID, got[0].ID)
	assert.Equal(t, core.EvBuy, got[0].Type)
	assert.Equal(t, uint64(7), got[0].Block)
	assert.Equal(t, "0xabc", got[0].Fields["pool"])
	assert.Equal(t, "1000", got[0].Fields["value"])
}

func TestRecentOrderAndLimit(t *testing.T) {
	j := openTemp(t)

	for i := 0; i < 5; i++ {
		ev := core.NewEvent(core.EvSell, uint64(i), nil)
		ev.At = time.Unix(int64(1_700_000_000+i), 0)
		j.Record(ev)
	}

	got, err := j.Recent(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(4), got[0].Block, "newest first")
	assert.Equal(t, uint64(2), got[2].Block)
}

func TestByTypeAndCounts(t *testing.T) {
	j := openTemp(t)

	j.Record(core.NewEvent(core.EvBuy, 1, nil))
	j.Record(core.NewEvent(core.EvBuy, 2, nil))
	j.Record(core.NewEvent(core.EvGraduated, 3, nil))

	buys, err := j.ByType(core.EvBuy, 10)
	require.NoError(t, err)
	assert.Len(t, buys, 2)

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[core.EvBuy])
	assert.Equal(t, int64(1), counts[core.EvGraduated])
}

func TestSinceBlock(t *testing.T) {
	j := openTemp(t)

	for i := uint64(1); i <= 4; i++ {
		j.Record(core.NewEvent(core.EvBuybackExecuted, i, nil))
	}

	got, err := j.SinceBlock(3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Block, "oldest first")
}
