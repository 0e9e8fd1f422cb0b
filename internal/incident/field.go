package incident

import (
	"bytes"
	"encoding/json"
)

// Field is one member of a Patch. Set records that the key was present at all,
// so an explicit null (Set with a nil Value) is distinct from an absent key.
type Field[T any] struct {
	Set   bool
	Value *T
}

// Some returns a present field holding v.
func Some[T any](v T) Field[T] { return Field[T]{Set: true, Value: &v} }

// Null returns a present field with no value.
func Null[T any]() Field[T] { return Field[T]{Set: true} }

// Null reports whether the field was sent as an explicit null.
func (f Field[T]) Null() bool { return f.Set && f.Value == nil }

// IsZero reports an absent field so omitzero drops it when encoding.
func (f Field[T]) IsZero() bool { return !f.Set }

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}
