package observers

import (
	"context"
	"sync"

	"github.com/Chative-triage/server/internal/agent/model"
)

// TransitionSink collects the stage transitions of one graph invocation. The
// graph's state post-handlers write to it; an optional callback forwards each
// transition as it happens.
type TransitionSink struct {
	mu       sync.Mutex
	items    []model.StageTransition
	seq      int
	onRecord func(model.StageTransition)
}

type sinkKey struct{}

// WithTransitionSink attaches a fresh sink to ctx. Sequence numbers continue
// after startSeq; onRecord may be nil.
func WithTransitionSink(ctx context.Context, startSeq int, onRecord func(model.StageTransition)) (context.Context, *TransitionSink) {
	s := &TransitionSink{seq: startSeq, onRecord: onRecord}
	return context.WithValue(ctx, sinkKey{}, s), s
}

// SinkFrom returns the sink attached to ctx, or nil.
func SinkFrom(ctx context.Context) *TransitionSink {
	s, _ := ctx.Value(sinkKey{}).(*TransitionSink)
	return s
}

// Record numbers t and stores it. A nil sink ignores it.
func (s *TransitionSink) Record(t model.StageTransition) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.seq++
	t.Seq = s.seq
	s.items = append(s.items, t)
	cb := s.onRecord
	s.mu.Unlock()

	if cb != nil {
		cb(t)
	}
}

// Drain returns the collected transitions and empties the sink.
func (s *TransitionSink) Drain() []model.StageTransition {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	return out
}
