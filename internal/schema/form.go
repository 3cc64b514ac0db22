// Copyright (c) 2026 John Earle
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://github.com/yourusername/bcem/blob/main/LICENSE
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package schema

import (
	"bytes"
	"fmt"
	"mime/multipart"
)

// File is one attachment to upload.
type File struct {
	Name string `json:"name" validate:"required"`
	Data []byte `json:"-"`
}

// Form is a pre-shaped multipart payload. The call factory sends a Form
// as-is: it is never validated against a request schema.
type Form struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field string
	file  File
}

// Multiparter is implemented by payloads that travel as multipart when
// they carry files. Returning nil means "send as JSON".
type Multiparter interface {
	MultipartForm() *Form
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// Add appends a text field. Repeated names are kept in order.
func (f *Form) Add(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// Attach appends a file part under the given field name.
func (f *Form) Attach(field string, file File) *Form {
	f.files = append(f.files, formFile{field: field, file: file})
	return f
}

// Value returns the first text value stored under name.
func (f *Form) Value(name string) (string, bool) {
	for _, field := range f.fields {
		if field.name == name {
			return field.value, true
		}
	}
	return "", false
}

// Files returns the files attached under field, in order.
func (f *Form) Files(field string) []File {
	var out []File
	for _, ff := range f.files {
		if ff.field == field {
			out = append(out, ff.file)
		}
	}
	return out
}

// Encode renders the form as a multipart/form-data body and returns the
// content type carrying its boundary.
func (f *Form) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field.name, err)
		}
	}
	for _, ff := range f.files {
		part, err := w.CreateFormFile(ff.field, ff.file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create part for %s: %w", ff.file.Name, err)
		}
		if _, err := part.Write(ff.file.Data); err != nil {
			return nil, "", fmt.Errorf("write part for %s: %w", ff.file.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
