package convai

import "sync"

type subscriber[T any] struct {
	id int
	fn func(T)
}

// observable holds a value readable from any goroutine. Changes are
// published to subscribers through notify, which the session points at its
// dispatcher so observers only ever run on the session loop.
type observable[T comparable] struct {
	mu          sync.Mutex
	value       T
	nextID      int
	subscribers []subscriber[T]
	notify      func(name string, fn func()) bool
	name        string
}

func newObservable[T comparable](name string, initial T, notify func(string, func()) bool) *observable[T] {
	return &observable[T]{name: name, value: initial, notify: notify}
}

func (o *observable[T]) get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// set stores v and reports whether it differed from the previous value.
// Subscribers are not notified of repeated values.
func (o *observable[T]) set(v T) bool {
	_, changed := o.update(func(T) T { return v })
	return changed
}

// update applies fn atomically and returns the new value.
func (o *observable[T]) update(fn func(T) T) (T, bool) {
	o.mu.Lock()
	old := o.value
	v := fn(old)
	if v == old {
		o.mu.Unlock()
		return v, false
	}
	o.value = v
	o.mu.Unlock()

	if o.notify != nil {
		o.notify(o.name, func() { o.publish(v) })
	}
	return v, true
}

func (o *observable[T]) publish(v T) {
	o.mu.Lock()
	subscribers := append([]subscriber[T](nil), o.subscribers...)
	o.mu.Unlock()

	for _, s := range subscribers {
		s.fn(v)
	}
}

// observe registers fn and returns a function removing it again.
func (o *observable[T]) observe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subscribers = append(o.subscribers, subscriber[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subscribers {
				if s.id == id {
					o.subscribers = append(o.subscribers[:i:i], o.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}
