package viewmodel

import "sync"

// Observable holds a value that observers are told about on each accepted write.
//
// Reads are safe from any goroutine. Writes come from the dispatch loop only, and observers run there.
type Observable[T any] struct {
	mu        sync.RWMutex
	value     T
	sealed    bool
	observers map[uint64]func(T)
	nextID    uint64

	clone func(T) T
}

func newObservable[T any](initial T, clone func(T) T) *Observable[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Observable[T]{
		value:     initial,
		observers: make(map[uint64]func(T)),
		clone:     clone,
	}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.clone(o.value)
}

// Observe registers fn to be called with every new value. Call stop to unregister it.
func (o *Observable[T]) Observe(fn func(T)) (stop func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.observers[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.observers, id)
	}
}

// set replaces the value and notifies observers. It returns false, changing nothing, once sealed.
func (o *Observable[T]) set(v T) bool {
	o.mu.Lock()
	if o.sealed {
		o.mu.Unlock()
		return false
	}
	o.value = v
	observers := make([]func(T), 0, len(o.observers))
	for _, fn := range o.observers {
		observers = append(observers, fn)
	}
	o.mu.Unlock()

	for _, fn := range observers {
		fn(o.clone(v))
	}
	return true
}

// seal forbids any further write and drops observers.
func (o *Observable[T]) seal() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sealed = true
	clear(o.observers)
}
