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

package replicate

import (
	"context"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/walteh/fgnpmr/pkg/couch"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// MaxConcurrent is the number of documents replicated at once
const MaxConcurrent = 5

// DesignDocuments are cleared before and restored after every run
var DesignDocuments = []string{
	"_design/app",
	"_design/ghost",
	"_design/scratch",
}

// 🚦 Phase is a step of a replication run
type Phase int

const (
	PhaseClearDesign Phase = iota
	PhaseDocuments
	PhaseDesignDocuments
)

func (p Phase) String() string {
	switch p {
	case PhaseClearDesign:
		return "clear-design"
	case PhaseDocuments:
		return "documents"
	case PhaseDesignDocuments:
		return "design-documents"
	default:
		return "unknown"
	}
}

// 📢 Logger receives informational progress messages
type Logger interface {
	Info(msg string)
}

// 📊 Result describes one finished document replication
type Result struct {
	ID          string
	Phase       Phase
	Attachments int
	Duration    time.Duration
	Err         error
}

// ResultLogger is a Logger that also wants a line per finished document
type ResultLogger interface {
	Logger
	LogResult(ctx context.Context, res Result)
}

// PhaseLogger is a Logger that wants to know how many documents a phase
// will replicate before the first one starts
type PhaseLogger interface {
	Logger
	StartPhase(ctx context.Context, phase Phase, documents int)
}

// WarningLogger is a Logger that wants to hear about failures the run
// carries on past
type WarningLogger interface {
	Logger
	Warning(msg string)
}

// 🔧 Options describes one replication job
type Options struct {
	// Store talks to both the source and the destination
	Store couch.Store
	// Source is the database url documents are read from
	Source string
	// Destination is the database url documents are written to
	Destination string
	// DocumentIDs are replicated in phase two, duplicates are dropped
	DocumentIDs []string
	// IgnorePatterns are doublestar globs; matching ids are skipped
	IgnorePatterns []string
	// Logger is optional
	Logger Logger
}

// 🛋️ Replicator runs replication jobs
type Replicator struct {
	store  couch.Store
	src    string
	dst    string
	ids    []string
	ignore []string
	logger Logger
	jobID  string
}

// 🏭 New creates a new Replicator
func New(opts Options) (*Replicator, error) {
	if opts.Store == nil {
		return nil, errors.Errorf("store is required")
	}
	if opts.Source == "" {
		return nil, errors.Errorf("source is required")
	}
	if opts.Destination == "" {
		return nil, errors.Errorf("destination is required")
	}
	for _, p := range opts.IgnorePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Errorf("invalid ignore pattern %q", p)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Replicator{
		store:  opts.Store,
		src:    opts.Source,
		dst:    opts.Destination,
		ids:    dedupe(opts.DocumentIDs),
		ignore: opts.IgnorePatterns,
		logger: logger,
		jobID:  uuid.NewString(),
	}, nil
}

// JobID identifies this job in logs
func (r *Replicator) JobID() string {
	return r.jobID
}

// 🏃 Run clears the design documents, replicates the requested documents and
// then restores the design documents, each phase finishing before the next.
//
// A failure to clear a design document is fatal and stops the run. Any other
// failure is collected, and Run returns them together as *Errors once every
// document has been attempted.
func (r *Replicator) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("job_id", r.jobID).Logger()
	ctx = logger.WithContext(ctx)

	start := time.Now()
	ids := r.filter(ctx, r.ids)
	logger.Debug().Int("documents", len(ids)).Str("source", r.src).Str("destination", r.dst).Msg("starting replication")

	if err := r.clearDesignDocuments(ctx); err != nil {
		return errors.Errorf("clearing design documents: %w", err)
	}

	rec := &recorder{}
	r.replicateAll(ctx, PhaseDocuments, ids, rec)
	r.replicateAll(ctx, PhaseDesignDocuments, DesignDocuments, rec)

	records := rec.snapshot()
	logger.Debug().Int("failed", len(records)).Dur("took", time.Since(start)).Msg("replication finished")
	if len(records) > 0 {
		return &Errors{Records: records}
	}
	return nil
}

func (r *Replicator) clearDesignDocuments(ctx context.Context) error {
	zerolog.Ctx(ctx).Debug().Str("phase", PhaseClearDesign.String()).Msg("starting phase")

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range DesignDocuments {
		id := id
		g.Go(func() error {
			return r.ForceDelete(gctx, id)
		})
	}
	return g.Wait()
}

// replicateAll replicates ids at most MaxConcurrent at a time and returns
// once all of them have finished
func (r *Replicator) replicateAll(ctx context.Context, phase Phase, ids []string, rec *recorder) {
	zerolog.Ctx(ctx).Debug().Str("phase", phase.String()).Int("documents", len(ids)).Msg("starting phase")
	if pl, ok := r.logger.(PhaseLogger); ok {
		pl.StartPhase(ctx, phase, len(ids))
	}

	var g errgroup.Group
	g.SetLimit(MaxConcurrent)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if failed := r.replicateID(ctx, phase, id); failed != nil {
				rec.add(*failed)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Replicator) filter(ctx context.Context, ids []string) []string {
	if len(r.ignore) == 0 {
		return ids
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if pattern, ok := r.ignored(id); ok {
			zerolog.Ctx(ctx).Info().Str("id", id).Str("pattern", pattern).Msg("document ignored by pattern")
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Replicator) ignored(id string) (string, bool) {
	for _, pattern := range r.ignore {
		// patterns were validated in New
		if ok, _ := doublestar.Match(pattern, id); ok {
			return pattern, true
		}
	}
	return "", false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Info(string) {}
