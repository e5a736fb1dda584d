// Package report turns the progress events of an import run into live
// counters, a final ImportReport and rendered output.
package report

import "deliverect-tools/catalog-importer/internal/models"

// Observer receives progress events in order, on the goroutine that emits them.
// Implementations must not block.
type Observer interface {
	OnEvent(models.Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(models.Event)

func (f ObserverFunc) OnEvent(e models.Event) { f(e) }

// MultiObserver fans each event out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e models.Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

// Nop discards events.
var Nop Observer = ObserverFunc(func(models.Event) {})
