package consumer

import (
	"context"
	"sync"

	"notifgate/internal/broker"
	"notifgate/internal/types"
)

// commitTracker keeps partition offsets committed in fetch order while
// messages are handled concurrently. Committing offset N acknowledges every
// earlier offset on that partition too, so a partition's group offset may
// only advance once all earlier in-flight messages on it are terminal;
// otherwise a crash mid-handling would skip those messages permanently.
type commitTracker struct {
	mu         sync.Mutex
	source     Source
	logger     types.Logger
	partitions map[int]*partitionWindow
}

// partitionWindow is the fetch-ordered set of in-flight messages for one
// partition. The broker delivers a partition's messages in order, so the
// head of pending is always the oldest uncommitted message.
type partitionWindow struct {
	pending  []broker.Message
	terminal map[int64]bool
}

func newCommitTracker(source Source, logger types.Logger) *commitTracker {
	return &commitTracker{
		source:     source,
		logger:     logger,
		partitions: make(map[int]*partitionWindow),
	}
}

// track registers a fetched message. Must be called in fetch order, before
// handling starts.
func (t *commitTracker) track(msg broker.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.partitions[msg.Partition]
	if w == nil {
		w = &partitionWindow{terminal: make(map[int64]bool)}
		t.partitions[msg.Partition] = w
	}
	w.pending = append(w.pending, msg)
}

// complete marks a handled message terminal and commits the newest message
// on its partition whose every predecessor is also terminal, if this
// completion unblocked one. Commits run under the tracker lock so offsets
// only ever move forward.
func (t *commitTracker) complete(ctx context.Context, msg broker.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.partitions[msg.Partition]
	if w == nil {
		return
	}
	w.terminal[msg.Offset] = true

	var ready broker.Message
	ok := false
	for len(w.pending) > 0 && w.terminal[w.pending[0].Offset] {
		ready = w.pending[0]
		delete(w.terminal, ready.Offset)
		w.pending = w.pending[1:]
		ok = true
	}
	if !ok {
		return
	}

	if err := t.source.Commit(ctx, ready); err != nil {
		// The uncommitted messages will be redelivered; handling must
		// tolerate that.
		t.logger.Error("failed to commit message",
			"partition", ready.Partition,
			"offset", ready.Offset,
			"error", err.Error(),
		)
	}
}
