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
	"encoding/json"
	"fmt"
	"net/http"

	"gitlab.com/tozd/go/errors"
)

// ❌ Error is a non-2xx response from a document store
type Error struct {
	Method     string
	URL        string
	StatusCode int
	ErrorType  string // CouchDB "error" field, e.g. "not_found"
	Reason     string // CouchDB "reason" field, e.g. "missing"
	Body       []byte
}

func (e *Error) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, e.ErrorType, e.Reason)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether the store said the document does not exist
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict reports a revision conflict
func (e *Error) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// 🔍 IsNotFound reports whether err is, or wraps, a not found store response
func IsNotFound(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.IsNotFound()
	}
	return false
}

// 📦 ResponseBody returns the response body attached to err, if any
func ResponseBody(err error) []byte {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Body
	}
	return nil
}

func newError(req *http.Request, status int, body []byte) *Error {
	e := &Error{
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		StatusCode: status,
		Body:       body,
	}
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.ErrorType = payload.Error
		e.Reason = payload.Reason
	}
	return e
}
