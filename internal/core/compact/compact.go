// Package compact builds sparse write payloads for schema-less stores: only
// fields that are present end up in the payload, absent ones are dropped
// rather than written as null.
package compact

// Option is a value that may be absent.
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

// FromPtr maps a nil pointer to None.
func FromPtr[T any](p *T) Option[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Option[T]) Present() bool {
	return o.ok
}

// Ptr returns nil for None.
func (o Option[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

func (o Option[T]) Value() any {
	return o.value
}

// Field is implemented by every Option.
type Field interface {
	Present() bool
	Value() any
}

type Fields map[string]Field

// Compact returns a payload holding only the present fields.
func Compact(fields Fields) map[string]any {
	out := make(map[string]any, len(fields))
	for name, f := range fields {
		if f == nil || !f.Present() {
			continue
		}
		out[name] = f.Value()
	}
	return out
}
