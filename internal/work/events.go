package work

import (
	"strings"
	"time"

	"github.com/kingrea/chainforge/internal/logbook"
)

// EventKind classifies production notifications.
type EventKind string

const (
	EventSegmentCrafted EventKind = "segment.crafted"
	EventSegmentFailed  EventKind = "segment.failed"
	EventSegmentDubbed  EventKind = "segment.dubbed"
	EventMissingContent EventKind = "segment.missing"
	EventChainState     EventKind = "chain.state"
	EventOverride       EventKind = "chain.override"
)

// Event is one notification from the production loop.
type Event struct {
	Kind      EventKind `json:"kind"`
	ChainID   string    `json:"chainId"`
	SegmentID int       `json:"segmentId"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Missing   []string  `json:"missing,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// EventHandler consumes production events. Handlers run synchronously on
// the worker goroutine and must not block.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function into an EventHandler.
type EventHandlerFunc func(Event)

// HandleEvent executes f(e).
func (f EventHandlerFunc) HandleEvent(e Event) {
	if f == nil {
		return
	}
	f(e)
}

// JournalHandler writes events to the transition journal.
func JournalHandler(lb *logbook.Logbook) EventHandler {
	return EventHandlerFunc(func(e Event) {
		if lb == nil {
			return
		}
		switch e.Kind {
		case EventSegmentCrafted:
			lb.Info("chain %s segment %d crafted (%s)", e.ChainID, e.SegmentID, e.To)
		case EventSegmentDubbed:
			lb.Info("chain %s segment %d dubbed", e.ChainID, e.SegmentID)
		case EventSegmentFailed:
			lb.Error("chain %s segment %d failed: %s", e.ChainID, e.SegmentID, e.Message)
		case EventMissingContent:
			lb.Warn("chain %s segment %d missing %s", e.ChainID, e.SegmentID, strings.Join(e.Missing, "; "))
		case EventChainState:
			lb.Info("chain %s %s -> %s", e.ChainID, e.From, e.To)
		case EventOverride:
			lb.Info("chain %s override: %s", e.ChainID, e.Message)
		}
	})
}

type handlers []EventHandler

func (hs handlers) emit(e Event) {
	for _, h := range hs {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}
