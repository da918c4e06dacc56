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
	"fmt"
	"strings"
	"sync"
)

// ❌ ErrorRecord describes one document that failed to replicate
type ErrorRecord struct {
	ID    string
	Err   error
	Body  []byte // response body that came with the failure, if any
	Phase Phase
}

func (r ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %v", r.ID, r.Err)
}

func (r ErrorRecord) Unwrap() error {
	return r.Err
}

// 📚 Errors is returned by Run when one or more documents failed. It is not
// fatal: every other document was still replicated.
type Errors struct {
	Records []ErrorRecord
}

func (e *Errors) Error() string {
	if len(e.Records) == 1 {
		return "replicating 1 document failed: " + e.Records[0].Error()
	}
	parts := make([]string, 0, len(e.Records))
	for _, r := range e.Records {
		parts = append(parts, r.Error())
	}
	return fmt.Sprintf("replicating %d documents failed: %s", len(e.Records), strings.Join(parts, "; "))
}

// IDs returns the failed document ids in record order
func (e *Errors) IDs() []string {
	ids := make([]string, 0, len(e.Records))
	for _, r := range e.Records {
		ids = append(ids, r.ID)
	}
	return ids
}

// 🧺 recorder is the append-only error list shared by concurrent replications
type recorder struct {
	mu      sync.Mutex
	records []ErrorRecord
}

func (r *recorder) add(rec ErrorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) snapshot() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorRecord(nil), r.records...)
}
