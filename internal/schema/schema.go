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

// Package schema is the registry of request and response shapes for the
// inbox API. Each shape is a Go struct whose field rules are declared as
// validator tags; a Schema value wraps the type and tells the call factory
// how a payload of that shape is decoded and checked.
//
// Validation failures are reported as *ValidationError with one Violation
// per broken rule, addressed by JSON path ("email", "tickets[2].from").
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind tells the call factory how to treat a response body.
type Kind int

const (
	// KindJSON bodies are decoded into the schema's type and validated.
	KindJSON Kind = iota
	// KindVoid means no content is expected; any body is discarded.
	KindVoid
	// KindBinary bodies are returned as raw bytes without decoding.
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindVoid:
		return "void"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Schema describes one payload shape.
type Schema[T any] interface {
	Kind() Kind
	Validate(v T) error
}

// Normalizer is implemented by payloads that rewrite themselves before
// validation (lower-casing an email, trimming a password).
type Normalizer interface {
	Normalize()
}

// Normalize applies v's Normalize method if it has one.
func Normalize[T any](v *T) {
	if n, ok := any(v).(Normalizer); ok {
		n.Normalize()
	}
}

// Empty is the value type of a void schema.
type Empty struct{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so violations line up with the wire payload.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	// isodate accepts a calendar date or a full RFC 3339 timestamp.
	if err := v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if _, err := time.Parse(time.DateOnly, s); err == nil {
			return true
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	}); err != nil {
		panic("schema: registering isodate validation: " + err.Error())
	}

	return v
}

// structSchema validates a struct (or pointer to struct) by its tags.
type structSchema[T any] struct{}

// Struct returns a JSON schema for T driven by T's validate tags.
func Struct[T any]() Schema[T] {
	return structSchema[T]{}
}

func (structSchema[T]) Kind() Kind { return KindJSON }

func (structSchema[T]) Validate(v T) error {
	return validateStruct(v, "")
}

func validateStruct(v any, prefix string) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return &ValidationError{Violations: []Violation{{
			Field:   strings.TrimSuffix(prefix, "."),
			Rule:    "required",
			Message: "value is required",
		}}}
	}

	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("schema: validating %T: %w", v, err)
	}

	violations := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, violationFrom(fe, prefix))
	}
	return &ValidationError{Violations: violations}
}

// violationFrom converts a validator field error. The namespace starts
// with the Go type name, which is dropped in favour of the caller's prefix.
func violationFrom(fe validator.FieldError, prefix string) Violation {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	return Violation{
		Field:   prefix + path,
		Rule:    fe.Tag(),
		Param:   fe.Param(),
		Message: describe(fe),
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "isodate":
		return "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"
	default:
		return "failed " + fe.Tag() + " rule"
	}
}

// listSchema validates every element with an element schema.
type listSchema[T any] struct {
	elem Schema[T]
}

// List returns a JSON schema for a slice whose elements follow elem.
// Violations are prefixed with the element index, e.g. "[3].status".
func List[T any](elem Schema[T]) Schema[[]T] {
	return listSchema[T]{elem: elem}
}

func (listSchema[T]) Kind() Kind { return KindJSON }

func (s listSchema[T]) Validate(items []T) error {
	var all []Violation
	for i, item := range items {
		err := s.elem.Validate(item)
		if err == nil {
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("element %d: %w", i, err)
		}
		for _, v := range verr.Violations {
			v.Field = joinPath(fmt.Sprintf("[%d]", i), v.Field)
			all = append(all, v)
		}
	}
	if len(all) > 0 {
		return &ValidationError{Violations: all}
	}
	return nil
}

func joinPath(prefix, field string) string {
	if field == "" {
		return prefix
	}
	return prefix + "." + field
}

type voidSchema struct{}

// Void is the schema of endpoints that return no content.
func Void() Schema[Empty] { return voidSchema{} }

func (voidSchema) Kind() Kind { return KindVoid }
func (voidSchema) Validate(Empty) error { return nil }

type binarySchema struct{}

// Binary is the schema of endpoints that return a file.
func Binary() Schema[[]byte] { return binarySchema{} }

func (binarySchema) Kind() Kind { return KindBinary }
func (binarySchema) Validate([]byte) error { return nil }

type anySchema[T any] struct{}

// Any accepts every value of T. Use it for payloads with no rules of their own.
func Any[T any]() Schema[T] { return anySchema[T]{} }

func (anySchema[T]) Kind() Kind { return KindJSON }
func (anySchema[T]) Validate(T) error { return nil }

// emptyAware wraps a schema with the value an empty body stands for.
type emptyAware[T any] struct {
	Schema[T]
	empty T
}

// OrEmpty returns s, except that an empty response body decodes to empty
// instead of counting as a mismatch. Endpoints that answer with either a
// payload or no content use it.
func OrEmpty[T any](s Schema[T], empty T) Schema[T] {
	return emptyAware[T]{Schema: s, empty: empty}
}

// EmptyValue is the value an empty body stands for.
func (e emptyAware[T]) EmptyValue() T { return e.empty }
