package touchpoints_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/models"
	"wpinsight/internal/testsupport"
	"wpinsight/internal/touchpoints"
)

func TestAppendAllocatesSequence(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	ledger := touchpoints.NewLedger(db)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first := &touchpoints.Touchpoint{SessionID: "s1", OccurredAt: start, SourceType: touchpoints.SourcePageview, Source: "direct", PageRef: "/"}
	require.NoError(t, ledger.Append(ctx, first))
	second := &touchpoints.Touchpoint{SessionID: "s1", OccurredAt: start.Add(time.Minute), SourceType: touchpoints.SourceCampaignClick,
		Source: "google", Medium: "cpc", UTM: models.UTM{Source: "google", Medium: "cpc", Campaign: "brand"}}
	require.NoError(t, ledger.Append(ctx, second))
	other := &touchpoints.Touchpoint{SessionID: "s2", OccurredAt: start, SourceType: touchpoints.SourcePageview}
	require.NoError(t, ledger.Append(ctx, other))

	assert.Equal(t, 1, first.SequenceNo)
	assert.Equal(t, 2, second.SequenceNo)
	assert.Equal(t, 1, other.SequenceNo)
	assert.NotZero(t, second.ID)
	assert.Equal(t, "s1#2", second.Ref())
	assert.Equal(t, "brand", second.Campaign())
	assert.Equal(t, "(none)", first.Campaign())

	tps, err := ledger.GetTouchpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, tps, 2)
	assert.Equal(t, touchpoints.SourcePageview, tps[0].SourceType)
	assert.Equal(t, "brand", tps[1].UTM.Campaign)

	empty, err := ledger.GetTouchpoints(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Error(t, ledger.Append(ctx, &touchpoints.Touchpoint{}))
}

func TestAppendConcurrentSequence(t *testing.T) {
	db := testsupport.SetupFileDB(t, 4)
	ledger := touchpoints.NewLedger(db)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.Append(context.Background(), &touchpoints.Touchpoint{SessionID: "s1", SourceType: touchpoints.SourcePageview})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tps, err := ledger.GetTouchpoints(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, tps, n)
	for i, tp := range tps {
		assert.Equal(t, i+1, tp.SequenceNo)
	}
}

func TestConsumeFlagsWithoutDeleting(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	ledger := touchpoints.NewLedger(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Append(ctx, &touchpoints.Touchpoint{SessionID: "s1", SourceType: touchpoints.SourcePageview}))
	}

	consumed, err := ledger.Consume(ctx, "s1", 2, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), consumed)

	// Already consumed rows are not re-flagged
	consumed, err = ledger.Consume(ctx, "s1", 3, "order-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), consumed)

	tps, err := ledger.GetTouchpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, tps, 3)
	assert.Equal(t, "order-1", tps[0].ConsumedByOrder)
	assert.Equal(t, "order-1", tps[1].ConsumedByOrder)
	assert.Equal(t, "order-2", tps[2].ConsumedByOrder)
	for _, tp := range tps {
		assert.True(t, tp.Consumed)
		assert.NotNil(t, tp.ConsumedAt)
	}
}
