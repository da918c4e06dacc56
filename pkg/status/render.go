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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/walteh/fgnpmr/pkg/replicate"
	"gitlab.com/tozd/go/errors"
)

// maxBodyWidth bounds how much of a response body ends up in a table cell
const maxBodyWidth = 80

// 📋 RenderDocs writes a table of finished documents to w
func RenderDocs(w io.Writer, docs []DocInfo) error {
	if len(docs) == 0 {
		return nil
	}

	data := pterm.TableData{{"Document", "Phase", "Status", "Attachments", "Took"}}
	for _, d := range docs {
		data = append(data, []string{
			d.ID,
			d.Phase.String(),
			d.Status.String(),
			fmt.Sprint(d.Attachments),
			d.Duration.Round(time.Millisecond).String(),
		})
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Errorf("rendering documents: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// ❌ RenderErrors writes one row per failed document to w. Response bodies
// are flattened to a single line and truncated.
func RenderErrors(w io.Writer, errs *replicate.Errors) error {
	if errs == nil || len(errs.Records) == 0 {
		return nil
	}

	data := pterm.TableData{{"Document", "Phase", "Error", "Response"}}
	for _, r := range errs.Records {
		data = append(data, []string{
			r.ID,
			r.Phase.String(),
			r.Err.Error(),
			flatten(r.Body),
		})
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Errorf("rendering errors: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func flatten(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if r := []rune(s); len(r) > maxBodyWidth {
		return string(r[:maxBodyWidth-3]) + "..."
	}
	return s
}
