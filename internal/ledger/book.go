// Package ledger holds append-only record books with aggregate queries.
package ledger

import (
	"fmt"
	"sync"
)

// Record is anything a Book can hold.
type Record interface {
	Validate() error
	Value() float64
	Field(name string) (string, bool)
}

// Book is an append-only, concurrency-safe list of records.
type Book[T Record] struct {
	mu      sync.Mutex
	records []T
}

// NewBook returns a book preloaded with records. Invalid records are
// rejected so a corrupt source cannot seed the book.
func NewBook[T Record](records ...T) (*Book[T], error) {
	b := &Book[T]{}
	for _, r := range records {
		if err := b.Add(r); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add validates r and appends it. On failure the book is unchanged and
// the error wraps core.ErrInvalidRecord.
func (b *Book[T]) Add(r T) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("add record: %w", err)
	}
	b.mu.Lock()
	b.records = append(b.records, r)
	b.mu.Unlock()
	return nil
}

// All returns a copy of the records in insertion order.
func (b *Book[T]) All() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.records))
	copy(out, b.records)
	return out
}

func (b *Book[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Total sums Value over all records; an empty book totals 0.
func (b *Book[T]) Total() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sum(b.records)
}

// Filter returns the records whose field equals value, in insertion order.
// Unknown fields match nothing.
func (b *Book[T]) Filter(field, value string) []T {
	return b.Where(fieldEquals[T](field, value))
}

// Filter selects from records that have not been through a Book, such as
// rows listed straight from storage. Records are not validated.
func Filter[T Record](records []T, field, value string) []T {
	keep := fieldEquals[T](field, value)
	var out []T
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func fieldEquals[T Record](field, value string) func(T) bool {
	return func(r T) bool {
		v, ok := r.Field(field)
		return ok && v == value
	}
}

// Where returns the records matching keep, in insertion order.
func (b *Book[T]) Where(keep func(T) bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []T
	for _, r := range b.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func sum[T Record](records []T) float64 {
	var total float64
	for _, r := range records {
		total += r.Value()
	}
	return total
}
