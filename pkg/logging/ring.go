// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRingCapacity is the default number of log lines a RingExporter
// retains.
const DefaultRingCapacity = 100

// RingExporter retains the most recent log entries as formatted lines in a
// bounded ring. When full, the oldest line is dropped for each new one.
//
// The dashboard's log-polling endpoint reads lines from here; the ring is
// never exposed directly, only copied snapshots.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type RingExporter struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// NewRingExporter creates a RingExporter retaining up to capacity lines.
// Non-positive capacities fall back to DefaultRingCapacity.
func NewRingExporter(capacity int) *RingExporter {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingExporter{
		lines: make([]string, 0, capacity),
		cap:   capacity,
	}
}

// Export formats the entry as "timestamp - LEVEL - message" and appends it,
// evicting the oldest line when the ring is full.
func (e *RingExporter) Export(ctx context.Context, entry LogEntry) error {
	e.append(fmt.Sprintf("%s - %s - %s",
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		entry.Level,
		entry.Message))
	return nil
}

// Flush is a no-op; lines are already in memory.
func (e *RingExporter) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (e *RingExporter) Close() error { return nil }

// Lines returns a copy of the retained lines, oldest first.
func (e *RingExporter) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.lines))
	copy(out, e.lines)
	return out
}

// Clear discards all retained lines.
func (e *RingExporter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = e.lines[:0]
}

// Len returns the number of retained lines.
func (e *RingExporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lines)
}

var _ LogExporter = (*RingExporter)(nil)

// append stores one formatted line, evicting the oldest when full.
func (e *RingExporter) append(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.lines) >= e.cap {
		copy(e.lines, e.lines[1:])
		e.lines[len(e.lines)-1] = line
		return
	}
	e.lines = append(e.lines, line)
}

// AsHandler returns a slog.Handler that records every log line at or above
// minLevel into the ring. Combine with Fanout to capture library slog
// output for the dashboard.
func (e *RingExporter) AsHandler(minLevel slog.Level) slog.Handler {
	return &ringHandler{ring: e, level: minLevel}
}

// ringHandler adapts a RingExporter to the slog.Handler interface.
// Attribute context from WithAttrs and WithGroup is deliberately dropped;
// the dashboard shows plain message lines.
type ringHandler struct {
	ring  *RingExporter
	level slog.Level
}

func (h *ringHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ringHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.ring.append(fmt.Sprintf("%s - %s - %s",
		ts.Format("2006-01-02 15:04:05"),
		r.Level.String(),
		r.Message))
	return nil
}

func (h *ringHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *ringHandler) WithGroup(string) slog.Handler { return h }
