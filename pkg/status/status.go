// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/fgnpmr/pkg/replicate"
)

// 📊 DocStatus represents the outcome of one document replication
type DocStatus int

const (
	StatusUnknown    DocStatus = iota
	StatusReplicated           // Document and all attachments were written
	StatusFailed               // Replication stopped with an error
)

// String returns a string representation of DocStatus
func (s DocStatus) String() string {
	switch s {
	case StatusReplicated:
		return "replicated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// 📄 DocInfo contains what is known about a finished document
type DocInfo struct {
	ID          string          // Document id
	Phase       replicate.Phase // Phase the document was replicated in
	Status      DocStatus       // Outcome
	Attachments int             // Attachments copied
	Duration    time.Duration   // Time spent on the document
	Error       error           // Any error associated with this document
}

// 📈 Tracker records every finished document and reports progress. It wraps
// another replicate.Logger and forwards everything to it.
type Tracker struct {
	next      replicate.Logger
	formatter ProgressFormatter

	// Document tracking
	mu   sync.RWMutex
	docs []DocInfo

	// Progress tracking
	total     int
	processed int
}

var (
	_ replicate.ResultLogger  = (*Tracker)(nil)
	_ replicate.PhaseLogger   = (*Tracker)(nil)
	_ replicate.WarningLogger = (*Tracker)(nil)
)

// 🏭 NewTracker creates a tracker forwarding to next, which may be nil
func NewTracker(next replicate.Logger) *Tracker {
	return &Tracker{
		next:      next,
		formatter: NewDefaultProgressFormatter(),
	}
}

// Info forwards msg to the wrapped logger
func (t *Tracker) Info(msg string) {
	if t.next != nil {
		t.next.Info(msg)
	}
}

// Warning forwards msg to the wrapped logger if it takes warnings
func (t *Tracker) Warning(msg string) {
	if wl, ok := t.next.(replicate.WarningLogger); ok {
		wl.Warning(msg)
	}
}

// StartPhase grows the expected total by the documents of a phase
func (t *Tracker) StartPhase(ctx context.Context, phase replicate.Phase, documents int) {
	t.mu.Lock()
	t.total += documents
	msg := t.formatter.FormatProgress(t.processed, t.total)
	t.mu.Unlock()

	zerolog.Ctx(ctx).Debug().
		Str("phase", phase.String()).
		Int("documents", documents).
		Msg(msg)

	if pl, ok := t.next.(replicate.PhaseLogger); ok {
		pl.StartPhase(ctx, phase, documents)
	}
}

// LogResult tracks a finished document and forwards it
func (t *Tracker) LogResult(ctx context.Context, res replicate.Result) {
	info := DocInfo{
		ID:          res.ID,
		Phase:       res.Phase,
		Status:      StatusReplicated,
		Attachments: res.Attachments,
		Duration:    res.Duration,
		Error:       res.Err,
	}
	if res.Err != nil {
		info.Status = StatusFailed
	}

	t.mu.Lock()
	t.docs = append(t.docs, info)
	t.processed++
	msg := t.formatter.FormatProgress(t.processed, t.total)
	processed, total := t.processed, t.total
	t.mu.Unlock()

	zerolog.Ctx(ctx).Debug().
		Int("processed", processed).
		Int("total", total).
		Msg(msg)

	if rl, ok := t.next.(replicate.ResultLogger); ok {
		rl.LogResult(ctx, res)
	}
}

// Docs returns the finished documents in the order they finished
func (t *Tracker) Docs() []DocInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]DocInfo(nil), t.docs...)
}

// Progress returns how many documents finished out of how many were expected
func (t *Tracker) Progress() (processed, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.processed, t.total
}
