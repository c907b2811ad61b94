package hxrender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// TemplateState is a serialized state value whose concrete Go type is only
// known to the template that produced it.
//
// The engine moves states between generation functions, stores and the
// client without knowing their types. Each state carries the name of the
// type it was created from; StateAs checks that name at the one point where
// the concrete type is known again, so a state written by one template can
// never be silently decoded as another template's type.
//
// The zero TemplateState means "no state".
type TemplateState struct {
	typ   string
	value json.RawMessage
}

type stateEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// NewState wraps v as a TemplateState.
func NewState[S any](v S) (TemplateState, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return TemplateState{}, fmt.Errorf("%w: encode %T: %v", ErrInvalidState, v, err)
	}
	return TemplateState{typ: typeNameOf[S](v), value: b}, nil
}

// MustState is NewState for values known to be serializable, such as in
// tests and examples.
func MustState[S any](v S) TemplateState {
	s, err := NewState(v)
	if err != nil {
		panic(err)
	}
	return s
}

// anyState wraps an untyped value, using its dynamic type as discriminant.
// A nil value yields the empty state.
func anyState(v any) (TemplateState, error) {
	if v == nil {
		return TemplateState{}, nil
	}
	if s, ok := v.(TemplateState); ok {
		return s, nil
	}
	return NewState(v)
}

// ParseState decodes the string form produced by String. The empty string
// and "null" decode to the empty state.
func ParseState(s string) (TemplateState, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return TemplateState{}, nil
	}
	var env stateEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return TemplateState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if env.Type == "" {
		return TemplateState{}, fmt.Errorf("%w: missing type discriminant", ErrInvalidState)
	}
	return TemplateState{typ: env.Type, value: env.Value}, nil
}

// StateAs recovers the concrete value held by s. It fails with
// ErrInvalidState if s was created from a different type or its value does
// not decode. Asking for an interface type skips the discriminant check.
func StateAs[S any](s TemplateState) (S, error) {
	var out S
	if s.IsEmpty() {
		return out, fmt.Errorf("%w: state is empty", ErrInvalidState)
	}
	want := reflect.TypeOf((*S)(nil)).Elem()
	if want.Kind() != reflect.Interface && want.String() != s.typ {
		return out, fmt.Errorf("%w: have %s, want %s", ErrInvalidState, s.typ, want)
	}
	if err := json.Unmarshal(s.value, &out); err != nil {
		return out, fmt.Errorf("%w: decode %s: %v", ErrInvalidState, s.typ, err)
	}
	return out, nil
}

// IsEmpty reports whether s holds no state.
func (s TemplateState) IsEmpty() bool {
	return s.typ == ""
}

// Type returns the type discriminant.
func (s TemplateState) Type() string {
	return s.typ
}

// Value returns the JSON encoding of the wrapped value.
func (s TemplateState) Value() json.RawMessage {
	return s.value
}

// String returns the serialized envelope, or "" for the empty state.
func (s TemplateState) String() string {
	if s.IsEmpty() {
		return ""
	}
	b, err := json.Marshal(stateEnvelope{Type: s.typ, Value: s.value})
	if err != nil {
		// value came out of json.Marshal or json.Unmarshal, so it is valid JSON
		panic(err)
	}
	return string(b)
}

// MarshalJSON encodes the envelope, or null for the empty state.
func (s TemplateState) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal(stateEnvelope{Type: s.typ, Value: s.value})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *TemplateState) UnmarshalJSON(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// typeNameOf names the type of v, preferring the dynamic type when S is an
// interface so that untyped values still carry a useful discriminant.
func typeNameOf[S any](v S) string {
	t := reflect.TypeOf((*S)(nil)).Elem()
	if t.Kind() == reflect.Interface {
		if dyn := reflect.TypeOf(any(v)); dyn != nil {
			return dyn.String()
		}
	}
	return t.String()
}

// States pairs the build-time and request-time states of one request.
type States struct {
	Build   TemplateState
	Request TemplateState
}
