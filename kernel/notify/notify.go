// Package notify implements the bounded subscriber lists that input drivers
// use to fan events out to their consumers.
package notify

import "github.com/CodeDestroyer19/universeK/kernel"

// MaxSubscribers is the capacity of a List.
const MaxSubscribers = 8

// Handle identifies a subscription. The zero Handle never refers to a live
// subscription.
type Handle uint32

var (
	errListFull = &kernel.Error{Module: "notify", Message: "subscriber list is full", Kind: kernel.KindCapacity}

	errNilSubscriber = &kernel.Error{Module: "notify", Message: "nil subscriber", Kind: kernel.KindInvalidArgument}
)

type slot[E any] struct {
	handle Handle
	fn     func(E)
}

// List is an ordered set of at most MaxSubscribers callbacks. Callbacks are
// invoked in subscription order. The zero value is an empty list.
//
// List performs no locking; drivers mutate it inside a critical section and
// deliver from their interrupt handler.
type List[E any] struct {
	slots      [MaxSubscribers]slot[E]
	count      int
	nextHandle Handle
}

// Subscribe appends fn to the list and returns the handle that removes it.
func (l *List[E]) Subscribe(fn func(E)) (Handle, *kernel.Error) {
	if fn == nil {
		return 0, errNilSubscriber
	}
	if l.count == MaxSubscribers {
		return 0, errListFull
	}

	l.nextHandle++
	if l.nextHandle == 0 {
		l.nextHandle++
	}

	l.slots[l.count] = slot[E]{handle: l.nextHandle, fn: fn}
	l.count++
	return l.nextHandle, nil
}

// Unsubscribe removes the subscription identified by h, preserving the order
// of the remaining subscribers. It reports whether h was found.
func (l *List[E]) Unsubscribe(h Handle) bool {
	if h == 0 {
		return false
	}

	for i := 0; i < l.count; i++ {
		if l.slots[i].handle != h {
			continue
		}

		copy(l.slots[i:l.count], l.slots[i+1:l.count])
		l.count--
		l.slots[l.count] = slot[E]{}
		return true
	}

	return false
}

// Len returns the number of subscribers.
func (l *List[E]) Len() int {
	return l.count
}

// Deliver invokes every subscriber with ev in subscription order.
func (l *List[E]) Deliver(ev E) {
	for i := 0; i < l.count; i++ {
		l.slots[i].fn(ev)
	}
}
