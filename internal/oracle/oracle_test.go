// =============================
// File: internal/oracle/oracle_test.go
// =============================

package oracle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostedFeed(t *testing.T) {
	f := NewPostedFeed()

	_, err := f.LatestQuote()
	require.Error(t, err, "empty feed must not serve a zero quote")

	at := time.Unix(1_700_000_000, 0)
	f.Post(decimal.RequireFromString("142.55"), at)

	q, err := f.LatestQuote()
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("142.55")))
	assert.Equal(t, at, q.UpdatedAt)
}

func TestValidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fresh := Quote{Price: decimal.NewFromInt(100), UpdatedAt: now.Add(-time.Minute)}
	assert.NoError(t, Validate(fresh, now, 5*time.Minute))

	stale := Quote{Price: decimal.NewFromInt(100), UpdatedAt: now.Add(-time.Hour)}
	assert.Error(t, Validate(stale, now, 5*time.Minute))

	negative := Quote{Price: decimal.NewFromInt(-1), UpdatedAt: now}
	assert.Error(t, Validate(negative, now, 5*time.Minute))

	zero := Quote{Price: decimal.Zero, UpdatedAt: now}
	assert.Error(t, Validate(zero, now, 5*time.Minute))

	untimed := Quote{Price: decimal.NewFromInt(1)}
	assert.Error(t, Validate(untimed, now, 5*time.Minute))
}
