// Defines hooks for load, mutation and save events.

package tablestore

import "time"

// Op names a mutating operation.
type Op string

const (
	// OpInsert is reported by Insert.
	OpInsert Op = "insert"
	// OpUpdate is reported by a successful Update.
	OpUpdate Op = "update"
	// OpDelete is reported by a successful Delete.
	OpDelete Op = "delete"
)

// Observer receives store events.
//
// OnLoad is called once from Open. OnMutation is called with the store lock
// held. OnSave is called from the writer goroutine after each write attempt.
// Implementations must be quick and must not call back into the Store.
type Observer interface {
	OnLoad(tables, records int, err error)
	OnMutation(op Op, table string)
	OnSave(bytes int, d time.Duration, err error)
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// OnLoad implements [Observer].
func (m MultiObserver) OnLoad(tables, records int, err error) {
	for _, o := range m {
		o.OnLoad(tables, records, err)
	}
}

// OnMutation implements [Observer].
func (m MultiObserver) OnMutation(op Op, table string) {
	for _, o := range m {
		o.OnMutation(op, table)
	}
}

// OnSave implements [Observer].
func (m MultiObserver) OnSave(bytes int, d time.Duration, err error) {
	for _, o := range m {
		o.OnSave(bytes, d, err)
	}
}

type nopObserver struct{}

func (nopObserver) OnLoad(int, int, error) {}
func (nopObserver) OnMutation(Op, string) {}
func (nopObserver) OnSave(int, time.Duration, error) {}
