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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/fgnpmr/pkg/couch"
	"gitlab.com/tozd/go/errors"
)

// 🗑️ ForceDelete removes id from the destination if it is there. A document
// that cannot be read, or has no revision, counts as already deleted.
func (r *Replicator) ForceDelete(ctx context.Context, id string) error {
	logger := zerolog.Ctx(ctx)

	doc, err := r.store.Get(ctx, r.dst, id)
	if err != nil {
		if !couch.IsNotFound(err) {
			logger.Debug().Err(err).Str("id", id).Msg("destination document unreadable, treating as absent")
		}
		return nil
	}
	if doc.Rev == "" {
		return nil
	}

	if err := r.store.Destroy(ctx, r.dst, id, doc.Rev); err != nil {
		if couch.IsNotFound(err) {
			return nil
		}
		return errors.Errorf("destroying %s at %s: %w", id, doc.Rev, err)
	}

	logger.Debug().Str("id", id).Str("rev", doc.Rev).Msg("destination document deleted")
	return nil
}

// 📎 CopyAttachment streams one attachment of id from the source onto the
// destination document's current revision.
func (r *Replicator) CopyAttachment(ctx context.Context, id, name string, info couch.AttachmentInfo) error {
	doc, err := r.store.Get(ctx, r.dst, id)
	if err != nil {
		return errors.Errorf("reading destination revision: %w", err)
	}

	sink, err := r.store.SaveAttachment(ctx, r.dst, id, doc.Rev, name, info.ContentType)
	if err != nil {
		return errors.Errorf("opening destination attachment: %w", err)
	}

	src, err := r.store.GetAttachment(ctx, r.src, id, name)
	if err != nil {
		_ = sink.CloseWithError(err)
		return errors.Errorf("opening source attachment: %w", err)
	}
	defer src.Close()

	// source credentials must never reach the destination
	sink.Header().Del("Authorization")

	n, err := io.Copy(sink, src)
	if err != nil {
		// a rejected upload closes the pipe; the store's answer explains why
		return errors.Errorf("streaming attachment: %w", sink.CloseWithError(err))
	}
	if err := sink.Close(); err != nil {
		return errors.Errorf("saving attachment: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("id", id).Str("attachment", name).Int64("bytes", n).Msg("attachment copied")
	return nil
}

// 📄 ReplicateID recreates id at the destination from the source, attachments
// included. It returns the failure instead of an error so a caller can keep
// going with other documents; nil means the document was replicated.
func (r *Replicator) ReplicateID(ctx context.Context, id string) *ErrorRecord {
	return r.replicateID(ctx, PhaseDocuments, id)
}

func (r *Replicator) replicateID(ctx context.Context, phase Phase, id string) *ErrorRecord {
	logger := zerolog.Ctx(ctx).With().Str("id", id).Str("phase", phase.String()).Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	r.logger.Info("Replicating " + id)

	if err := r.ForceDelete(ctx, id); err != nil {
		// the insert below will surface a conflict if this mattered
		logger.Warn().Err(err).Msg("force delete failed")
		if wl, ok := r.logger.(WarningLogger); ok {
			wl.Warning(fmt.Sprintf("Force delete of %s failed: %v", id, err))
		}
	}

	doc, err := r.store.Get(ctx, r.src, id)
	if err != nil {
		return r.fail(ctx, phase, id, start, errors.Errorf("fetching source document: %w", err))
	}

	if err := r.store.Insert(ctx, r.dst, id, doc.Strip()); err != nil {
		return r.fail(ctx, phase, id, start, errors.Errorf("inserting destination document: %w", err))
	}

	// each write bumps the revision, so attachments go one at a time in source order
	if names := doc.AttachmentNames(); len(names) > 0 {
		r.logger.Info("Replicating attachments: " + strings.Join(names, " "))
		for _, info := range doc.Attachments {
			if err := r.CopyAttachment(ctx, id, info.Name, info); err != nil {
				return r.fail(ctx, phase, id, start, errors.Errorf("copying attachment %s: %w", info.Name, err))
			}
		}
	}

	logger.Debug().Int("attachments", len(doc.Attachments)).Msg("document replicated")
	r.report(ctx, Result{
		ID:          id,
		Phase:       phase,
		Attachments: len(doc.Attachments),
		Duration:    time.Since(start),
	})
	return nil
}

func (r *Replicator) fail(ctx context.Context, phase Phase, id string, start time.Time, err error) *ErrorRecord {
	zerolog.Ctx(ctx).Debug().Err(err).Msg("document failed")
	r.report(ctx, Result{
		ID:       id,
		Phase:    phase,
		Duration: time.Since(start),
		Err:      err,
	})
	return &ErrorRecord{
		ID:    id,
		Err:   err,
		Body:  couch.ResponseBody(err),
		Phase: phase,
	}
}

func (r *Replicator) report(ctx context.Context, res Result) {
	if rl, ok := r.logger.(ResultLogger); ok {
		rl.LogResult(ctx, res)
	}
}
