// Package optional provides a two-variant value type for carrying "no value"
// through channels and pipelines that must never deliver a zero value in
// place of an absent one.
package optional

// Value holds either a present value (Some) or nothing (None).
// The zero Value is None.
type Value[T any] struct {
	value   T
	present bool
}

// Some returns a present Value wrapping v.
func Some[T any](v T) Value[T] {
	return Value[T]{value: v, present: true}
}

// None returns an absent Value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// Of wraps a nullable pointer. A nil pointer yields None, anything else yields
// Some of the pointed-to value.
func Of[T any](v *T) Value[T] {
	if v == nil {
		return None[T]()
	}
	return Some(*v)
}

// IsPresent reports whether the value is Some.
func (o Value[T]) IsPresent() bool {
	return o.present
}

// Get returns the contained value and whether it was present.
func (o Value[T]) Get() (T, bool) {
	return o.value, o.present
}

// Ptr converts the value back to a nullable pointer: nil for None, a pointer
// to a copy of the value for Some.
func (o Value[T]) Ptr() *T {
	if !o.present {
		return nil
	}
	v := o.value
	return &v
}

// OrElse returns the contained value or def when absent.
func (o Value[T]) OrElse(def T) T {
	if !o.present {
		return def
	}
	return o.value
}

// Map applies fn to a present value. None maps to None without calling fn.
func Map[T, U any](o Value[T], fn func(T) U) Value[U] {
	if !o.present {
		return None[U]()
	}
	return Some(fn(o.value))
}

// FilterPresent forwards the contents of every present value from in and
// skips absent ones. The returned channel is closed when in is closed or done
// is closed, whichever happens first.
func FilterPresent[T any](done <-chan struct{}, in <-chan Value[T]) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case o, ok := <-in:
				if !ok {
					return
				}
				v, present := o.Get()
				if !present {
					continue
				}
				select {
				case out <- v:
				case <-done:
					return
				}
			}
		}
	}()
	return out
}
