package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"notifgate/internal/broker"
)

func TestCommitTrackerHoldsUntilEarlierOffsetsAreTerminal(t *testing.T) {
	source := newFakeSource(0)
	tracker := newCommitTracker(source, nopLogger{})
	ctx := context.Background()

	msgs := []broker.Message{
		{Partition: 0, Offset: 5},
		{Partition: 0, Offset: 6},
		{Partition: 0, Offset: 7},
	}
	for _, m := range msgs {
		tracker.track(m)
	}

	tracker.complete(ctx, msgs[1])
	assert.Empty(t, source.committedOffsets(), "offset 6 must wait for offset 5")

	tracker.complete(ctx, msgs[0])
	assert.Equal(t, []int64{6}, source.committedOffsets(),
		"completing the head commits the newest contiguous terminal offset")

	tracker.complete(ctx, msgs[2])
	assert.Equal(t, []int64{6, 7}, source.committedOffsets())
}

func TestCommitTrackerPartitionsAreIndependent(t *testing.T) {
	source := newFakeSource(0)
	tracker := newCommitTracker(source, nopLogger{})
	ctx := context.Background()

	p0 := broker.Message{Partition: 0, Offset: 1}
	p1 := broker.Message{Partition: 1, Offset: 4}
	tracker.track(p0)
	tracker.track(p1)

	tracker.complete(ctx, p1)
	assert.Equal(t, []int64{4}, source.committedOffsets(),
		"an in-flight message on one partition must not hold another partition's commit")

	tracker.complete(ctx, p0)
	assert.Equal(t, []int64{4, 1}, source.committedOffsets())
}

func TestCommitTrackerToleratesOffsetGaps(t *testing.T) {
	source := newFakeSource(0)
	tracker := newCommitTracker(source, nopLogger{})
	ctx := context.Background()

	// Compacted topics and transaction markers leave holes in the offset
	// sequence; ordering follows fetch order, not offset arithmetic.
	first := broker.Message{Partition: 0, Offset: 10}
	second := broker.Message{Partition: 0, Offset: 14}
	tracker.track(first)
	tracker.track(second)

	tracker.complete(ctx, second)
	assert.Empty(t, source.committedOffsets())

	tracker.complete(ctx, first)
	assert.Equal(t, []int64{14}, source.committedOffsets())
}
