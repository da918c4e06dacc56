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

package replicate_test

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"github.com/walteh/fgnpmr/pkg/couch"
)

// 🔧 MockStore is a mock implementation of the couch.Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, db, id string) (*couch.Document, error) {
	result := m.Called(ctx, db, id)
	doc, _ := result.Get(0).(*couch.Document)
	return doc, result.Error(1)
}

func (m *MockStore) Destroy(ctx context.Context, db, id, rev string) error {
	result := m.Called(ctx, db, id, rev)
	return result.Error(0)
}

func (m *MockStore) Insert(ctx context.Context, db, id string, doc *couch.Document) error {
	result := m.Called(ctx, db, id, doc)
	return result.Error(0)
}

func (m *MockStore) GetAttachment(ctx context.Context, db, id, name string) (io.ReadCloser, error) {
	result := m.Called(ctx, db, id, name)
	rc, _ := result.Get(0).(io.ReadCloser)
	return rc, result.Error(1)
}

func (m *MockStore) SaveAttachment(ctx context.Context, db, id, rev, name, contentType string) (couch.AttachmentWriter, error) {
	result := m.Called(ctx, db, id, rev, name, contentType)
	w, _ := result.Get(0).(couch.AttachmentWriter)
	return w, result.Error(1)
}
