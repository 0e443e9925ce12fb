package timemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edit(index int, ts time.Time) Edit {
	return Edit{Index: index, MadeAt: ts, AccountID: "ada"}
}

func TestGroupByDayPartitionsWithoutLossOrDuplication(t *testing.T) {
	items := []Edit{
		edit(0, time.Date(2026, 3, 11, 22, 0, 0, 0, time.UTC)),
		edit(1, time.Date(2026, 3, 11, 23, 30, 0, 0, time.UTC)),
		edit(2, time.Date(2026, 3, 12, 0, 15, 0, 0, time.UTC)),
		edit(3, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
	}

	groups := GroupByDay(items, time.UTC)
	require.Len(t, groups, 3)

	seen := map[int]int{}
	total := 0
	for _, g := range groups {
		for _, e := range g.Edits {
			seen[e.Index]++
			total++
		}
	}
	assert.Equal(t, len(items), total, "every edit lands in exactly one bucket")
	for index, count := range seen {
		assert.Equal(t, 1, count, "edit %d appears %d times", index, count)
	}

	assert.Equal(t, "2026-03-11", groups[0].DateKey)
	assert.Equal(t, 1, groups[0].LastEditIndex)
	assert.Equal(t, "2026-03-12", groups[1].DateKey)
	assert.Equal(t, 2, groups[1].LastEditIndex)
	assert.Equal(t, "2026-03-14", groups[2].DateKey)
	assert.Equal(t, 3, groups[2].LastEditIndex)
}

func TestGroupByDayRespectsLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 23:00 UTC on the 11th is already the 12th in Tokyo.
	items := []Edit{
		edit(0, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)),
		edit(1, time.Date(2026, 3, 11, 23, 0, 0, 0, time.UTC)),
	}

	groups := GroupByDay(items, tokyo)
	require.Len(t, groups, 2)
	assert.Equal(t, "2026-03-11", groups[0].DateKey)
	assert.Equal(t, "2026-03-12", groups[1].DateKey)
}

func TestGroupByDayEmpty(t *testing.T) {
	assert.Empty(t, GroupByDay(nil, time.UTC))
}

func TestGroupByDayMidnightBoundary(t *testing.T) {
	items := []Edit{
		edit(0, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)),
	}
	groups := GroupByDay(items, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "2026-03-12", groups[0].DateKey)
	assert.Equal(t, groups[0].Date, items[0].MadeAt)
}
