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
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/fgnpmr/pkg/replicate"
	"gitlab.com/tozd/go/errors"
)

// 🔧 MockLogger is a mock implementation of every optional replicate logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(msg string) {
	m.Called(msg)
}

func (m *MockLogger) LogResult(ctx context.Context, res replicate.Result) {
	m.Called(ctx, res)
}

func (m *MockLogger) Warning(msg string) {
	m.Called(msg)
}

func (m *MockLogger) StartPhase(ctx context.Context, phase replicate.Phase, documents int) {
	m.Called(ctx, phase, documents)
}

// 🔧 infoOnly implements only replicate.Logger
type infoOnly struct {
	msgs []string
}

func (l *infoOnly) Info(msg string) { l.msgs = append(l.msgs, msg) }

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func TestTrackerForwards(t *testing.T) {
	ctx := testContext(t)
	next := &MockLogger{}
	res := replicate.Result{ID: "express", Phase: replicate.PhaseDocuments, Attachments: 2}

	next.On("Info", "Replicating express").Once()
	next.On("StartPhase", ctx, replicate.PhaseDocuments, 3).Once()
	next.On("Warning", "Force delete of express failed").Once()
	next.On("LogResult", ctx, res).Once()

	tracker := NewTracker(next)
	tracker.StartPhase(ctx, replicate.PhaseDocuments, 3)
	tracker.Info("Replicating express")
	tracker.Warning("Force delete of express failed")
	tracker.LogResult(ctx, res)

	next.AssertExpectations(t)
}

func TestTrackerInfoOnlyLogger(t *testing.T) {
	ctx := testContext(t)
	next := &infoOnly{}

	tracker := NewTracker(next)
	tracker.StartPhase(ctx, replicate.PhaseDocuments, 1)
	tracker.Info("Replicating left-pad")
	tracker.Warning("Force delete of left-pad failed")
	tracker.LogResult(ctx, replicate.Result{ID: "left-pad", Phase: replicate.PhaseDocuments})

	assert.Equal(t, []string{"Replicating left-pad"}, next.msgs)
	assert.Len(t, tracker.Docs(), 1)
}

func TestTrackerNilLogger(t *testing.T) {
	ctx := testContext(t)

	tracker := NewTracker(nil)
	assert.NotPanics(t, func() {
		tracker.StartPhase(ctx, replicate.PhaseDocuments, 1)
		tracker.Info("Replicating left-pad")
		tracker.Warning("Force delete of left-pad failed")
		tracker.LogResult(ctx, replicate.Result{ID: "left-pad"})
	})
}

func TestTrackerDocs(t *testing.T) {
	ctx := testContext(t)
	tracker := NewTracker(nil)

	tracker.StartPhase(ctx, replicate.PhaseDocuments, 2)
	tracker.LogResult(ctx, replicate.Result{
		ID:          "pkg-a",
		Phase:       replicate.PhaseDocuments,
		Attachments: 1,
		Duration:    time.Second,
	})
	tracker.LogResult(ctx, replicate.Result{
		ID:    "pkg-b",
		Phase: replicate.PhaseDocuments,
		Err:   errors.New("not found"),
	})

	docs := tracker.Docs()
	require.Len(t, docs, 2)

	assert.Equal(t, "pkg-a", docs[0].ID)
	assert.Equal(t, StatusReplicated, docs[0].Status)
	assert.Equal(t, 1, docs[0].Attachments)
	assert.Equal(t, time.Second, docs[0].Duration)
	assert.NoError(t, docs[0].Error)

	assert.Equal(t, "pkg-b", docs[1].ID)
	assert.Equal(t, StatusFailed, docs[1].Status)
	assert.EqualError(t, docs[1].Error, "not found")

	// the returned slice is a copy
	docs[0].ID = "changed"
	assert.Equal(t, "pkg-a", tracker.Docs()[0].ID)
}

func TestTrackerProgress(t *testing.T) {
	ctx := testContext(t)
	tracker := NewTracker(nil)

	tracker.StartPhase(ctx, replicate.PhaseDocuments, 2)
	tracker.LogResult(ctx, replicate.Result{ID: "a"})

	processed, total := tracker.Progress()
	assert.Equal(t, 1, processed)
	assert.Equal(t, 2, total)

	tracker.StartPhase(ctx, replicate.PhaseDesignDocuments, 3)
	for _, id := range []string{"b", "_design/app", "_design/ghost", "_design/scratch"} {
		tracker.LogResult(ctx, replicate.Result{ID: id})
	}

	processed, total = tracker.Progress()
	assert.Equal(t, 5, processed)
	assert.Equal(t, 5, total)
}

func TestTrackerConcurrent(t *testing.T) {
	ctx := testContext(t)
	tracker := NewTracker(nil)
	tracker.StartPhase(ctx, replicate.PhaseDocuments, 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.LogResult(ctx, replicate.Result{ID: "doc"})
		}()
	}
	wg.Wait()

	processed, total := tracker.Progress()
	assert.Equal(t, 50, processed)
	assert.Equal(t, 50, total)
	assert.Len(t, tracker.Docs(), 50)
}

func TestDocStatusString(t *testing.T) {
	assert.Equal(t, "replicated", StatusReplicated.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}
