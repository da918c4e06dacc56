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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/walteh/fgnpmr/pkg/couch"
	"gitlab.com/tozd/go/errors"
)

const (
	srcDB = "http://registry.test/registry"
	dstDB = "http://replica.test/registry"
)

// 🗄️ memAttachment is an attachment held by memStore
type memAttachment struct {
	name        string
	contentType string
	data        []byte
}

// 🗄️ memDoc is a document held by memStore
type memDoc struct {
	rev         int
	fields      map[string]json.RawMessage
	attachments []memAttachment
}

// 🗄️ memStore is an in-memory couch.Store holding any number of databases
type memStore struct {
	mu  sync.Mutex
	dbs map[string]map[string]*memDoc

	// sourceDelay is applied to every Get against srcDB
	sourceDelay time.Duration
	// attachmentsDown makes every GetAttachment fail like an unreachable host
	attachmentsDown bool
	// destroyErr is returned by every Destroy
	destroyErr error

	events     []string
	inserted   []*couch.Document
	writing    map[string]int
	overlap    bool
	leakedAuth bool
}

func newMemStore() *memStore {
	return &memStore{
		dbs:     map[string]map[string]*memDoc{srcDB: {}, dstDB: {}},
		writing: map[string]int{},
	}
}

var _ couch.Store = (*memStore)(nil)

func notFound() error {
	return &couch.Error{
		Method:     http.MethodGet,
		StatusCode: http.StatusNotFound,
		ErrorType:  "not_found",
		Reason:     "missing",
		Body:       []byte(`{"error":"not_found","reason":"missing"}`),
	}
}

func conflict(method string) error {
	return &couch.Error{
		Method:     method,
		StatusCode: http.StatusConflict,
		ErrorType:  "conflict",
		Reason:     "Document update conflict.",
		Body:       []byte(`{"error":"conflict","reason":"Document update conflict."}`),
	}
}

// put seeds a document; attachments alternate name, content
func (s *memStore) put(t *testing.T, db, id, body string, attachments ...string) {
	t.Helper()
	require.Zero(t, len(attachments)%2, "attachments come in name/content pairs")

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	fields["_id"] = json.RawMessage(fmt.Sprintf("%q", id))

	doc := &memDoc{rev: 1, fields: fields}
	for i := 0; i < len(attachments); i += 2 {
		doc.attachments = append(doc.attachments, memAttachment{
			name:        attachments[i],
			contentType: "application/octet-stream",
			data:        []byte(attachments[i+1]),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbs[db][id] = doc
}

// body returns the stored fields of a document as JSON, or "" when missing
func (s *memStore) body(db, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.dbs[db][id]
	if !ok {
		return ""
	}
	out, _ := json.Marshal(doc.fields)
	return string(out)
}

func (s *memStore) attachment(db, id, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.dbs[db][id]
	if !ok {
		return "", false
	}
	for _, a := range doc.attachments {
		if a.name == name {
			return string(a.data), true
		}
	}
	return "", false
}

func (s *memStore) eventsFor(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) record(event string) {
	s.events = append(s.events, event)
}

func (s *memStore) Get(ctx context.Context, db, id string) (*couch.Document, error) {
	if db == srcDB && s.sourceDelay > 0 {
		time.Sleep(s.sourceDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.dbs[db][id]
	if !ok {
		return nil, notFound()
	}

	fields := make(map[string]json.RawMessage, len(doc.fields))
	for k, v := range doc.fields {
		fields[k] = v
	}
	out := &couch.Document{
		Rev:    fmt.Sprintf("%d-mem", doc.rev),
		Fields: fields,
	}
	for _, a := range doc.attachments {
		out.Attachments = append(out.Attachments, couch.AttachmentInfo{
			Name:        a.name,
			ContentType: a.contentType,
			Length:      int64(len(a.data)),
			Stub:        true,
		})
	}
	return out, nil
}

func (s *memStore) Destroy(ctx context.Context, db, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyErr != nil {
		return s.destroyErr
	}
	doc, ok := s.dbs[db][id]
	if !ok {
		return notFound()
	}
	if rev != fmt.Sprintf("%d-mem", doc.rev) {
		return conflict(http.MethodDelete)
	}
	delete(s.dbs[db], id)
	s.record("destroy " + id)
	return nil
}

func (s *memStore) Insert(ctx context.Context, db, id string, doc *couch.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dbs[db][id]; ok {
		return conflict(http.MethodPut)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	s.dbs[db][id] = &memDoc{rev: 1, fields: fields}
	s.inserted = append(s.inserted, doc)
	s.record("insert " + id)
	return nil
}

func (s *memStore) GetAttachment(ctx context.Context, db, id, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attachmentsDown {
		return nil, errors.Errorf("GET %s/%s/%s: dial tcp: connection refused", db, id, name)
	}
	doc, ok := s.dbs[db][id]
	if !ok {
		return nil, notFound()
	}
	for _, a := range doc.attachments {
		if a.name == name {
			return io.NopCloser(bytes.NewReader(a.data)), nil
		}
	}
	return nil, notFound()
}

func (s *memStore) SaveAttachment(ctx context.Context, db, id, rev, name, contentType string) (couch.AttachmentWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writing[id]++
	if s.writing[id] > 1 {
		s.overlap = true
	}

	return &memSink{
		store:       s,
		db:          db,
		id:          id,
		rev:         rev,
		name:        name,
		contentType: contentType,
		// what a sink built from a shared, authenticated request template looks like
		header: http.Header{"Authorization": []string{"Basic c291cmNlOnNlY3JldA=="}},
	}, nil
}

// 🗄️ memSink buffers an upload and commits it to memStore on Close
type memSink struct {
	store       *memStore
	db          string
	id          string
	rev         string
	name        string
	contentType string
	header      http.Header
	buf         bytes.Buffer
	closed      bool
}

func (w *memSink) Header() http.Header { return w.header }

func (w *memSink) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memSink) CloseWithError(err error) error {
	w.release()
	return err
}

func (w *memSink) release() {
	if w.closed {
		return
	}
	w.closed = true
	w.store.mu.Lock()
	w.store.writing[w.id]--
	w.store.mu.Unlock()
}

func (w *memSink) Close() error {
	defer w.release()

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.header.Get("Authorization") != "" {
		s.leakedAuth = true
	}

	doc, ok := s.dbs[w.db][w.id]
	if !ok {
		return notFound()
	}
	if w.rev != fmt.Sprintf("%d-mem", doc.rev) {
		return conflict(http.MethodPut)
	}

	doc.attachments = append(doc.attachments, memAttachment{
		name:        w.name,
		contentType: w.contentType,
		data:        append([]byte(nil), w.buf.Bytes()...),
	})
	doc.rev++
	s.record("attach " + w.id + " " + w.name)
	return nil
}
