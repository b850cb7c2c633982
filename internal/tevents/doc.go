/*
Package events provides an in-memory event broker for thunder's engine
lifecycle notifications.

The events package implements a lightweight, non-blocking pub/sub bus used
by the commit pipeline and the engine's checkpoint path to surface what they
are doing to optional observers (a CLI `stats --watch` command, a metrics
exporter, or a test harness asserting on engine behavior). Publishing never
blocks the durability path: a full subscriber channel drops the event rather
than stall a commit.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  commit.applied                             │          │
	│  │  checkpoint.started / .completed            │          │
	│  │  wal.segment_rolled / .segment_truncated    │          │
	│  │  bucket.created / .deleted                  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Broker:
  - NewBroker creates an idle broker; Start begins its distribution loop
  - Subscribe returns a buffered channel of *Event; Unsubscribe closes it
  - Publish enqueues an event for broadcast, stamping Timestamp if unset

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			log.Printf("%s: %s", ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.EventCheckpointCompleted})

# Design notes

The broker is deliberately topic-agnostic: all subscribers see all events
and filter client-side. thunder's internal subscriber counts are small
(the CLI, a metrics collector), so this keeps the implementation simple
without a routing layer.
*/
package events
