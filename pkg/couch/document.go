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

package couch

import (
	"bytes"
	"encoding/json"

	"gitlab.com/tozd/go/errors"
)

const (
	fieldID          = "_id"
	fieldRev         = "_rev"
	fieldAttachments = "_attachments"
)

// 📎 AttachmentInfo is one entry of a document's _attachments block
type AttachmentInfo struct {
	Name        string `json:"-"`
	ContentType string `json:"content_type"`
	Length      int64  `json:"length,omitempty"`
	Digest      string `json:"digest,omitempty"`
	Stub        bool   `json:"stub,omitempty"`
}

// 📄 Document is a CouchDB document as returned by a store.
//
// Fields holds every top level field except _rev and _attachments, which are
// store assigned and kept apart so they can be dropped before an insert.
// Attachments keeps the order in which the store listed them.
type Document struct {
	Rev         string
	Attachments []AttachmentInfo
	Fields      map[string]json.RawMessage

	rawAttachments json.RawMessage
}

// 🆔 ID returns the document _id, or "" if the body carries none
func (d *Document) ID() string {
	raw, ok := d.Fields[fieldID]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// 📛 AttachmentNames returns attachment names in source order
func (d *Document) AttachmentNames() []string {
	names := make([]string, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		names = append(names, a.Name)
	}
	return names
}

// ✂️ Strip returns a copy of the document without _rev and _attachments
func (d *Document) Strip() *Document {
	fields := make(map[string]json.RawMessage, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return &Document{Fields: fields}
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Fields)+2)
	for k, v := range d.Fields {
		out[k] = v
	}
	if d.Rev != "" {
		rev, err := json.Marshal(d.Rev)
		if err != nil {
			return nil, errors.Errorf("encoding _rev: %w", err)
		}
		out[fieldRev] = rev
	}
	if len(d.rawAttachments) > 0 {
		out[fieldAttachments] = d.rawAttachments
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Errorf("decoding document: %w", err)
	}
	if fields == nil {
		return errors.New("decoding document: body is not a JSON object")
	}

	doc := Document{Fields: fields}

	if raw, ok := fields[fieldRev]; ok {
		delete(fields, fieldRev)
		if err := json.Unmarshal(raw, &doc.Rev); err != nil {
			return errors.Errorf("decoding _rev: %w", err)
		}
	}

	if raw, ok := fields[fieldAttachments]; ok {
		delete(fields, fieldAttachments)
		attachments, err := decodeAttachments(raw)
		if err != nil {
			return errors.Errorf("decoding _attachments: %w", err)
		}
		doc.Attachments = attachments
		doc.rawAttachments = raw
	}

	*d = doc
	return nil
}

// decodeAttachments walks the _attachments object token by token so the
// resulting slice keeps the key order of the wire body.
func decodeAttachments(raw json.RawMessage) ([]AttachmentInfo, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.Errorf("expected object, got %v", tok)
	}

	var out []AttachmentInfo
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.Errorf("expected attachment name, got %v", tok)
		}
		var info AttachmentInfo
		if err := dec.Decode(&info); err != nil {
			return nil, errors.Errorf("attachment %q: %w", name, err)
		}
		info.Name = name
		out = append(out, info)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
