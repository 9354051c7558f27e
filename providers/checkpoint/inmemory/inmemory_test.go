package inmemory

import (
	"context"
	"testing"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/providers/checkpoint/checkpointtest"
	"github.com/leofalp/devforge/providers/observability"
)

func TestStore(t *testing.T) {
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store { return New() })
}

type recordingSpan struct {
	observability.Span
	events []string
}

func (s *recordingSpan) AddEvent(name string, _ ...observability.Attribute) {
	s.events = append(s.events, name)
}

func TestSave_RecordsSpanEvent(t *testing.T) {
	span := &recordingSpan{}
	ctx := observability.ContextWithSpan(context.Background(), span)

	if err := New().Save(ctx, checkpointtest.Make("r", "n", 1, nil)); err != nil {
		t.Fatal(err)
	}
	if len(span.events) != 1 || span.events[0] != observability.EventCheckpointSaved {
		t.Errorf("events = %v", span.events)
	}
}
