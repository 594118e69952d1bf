package feed

import "github.com/rickgao/pricefeed/internal/model"

// Observer receives every data change of a session.
type Observer interface {
	OnUpdate(u model.Update)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(u model.Update)

// OnUpdate implements Observer.
func (f ObserverFunc) OnUpdate(u model.Update) {
	f(u)
}

// MultiObserver fans an update out to several observers in order.
type MultiObserver []Observer

// OnUpdate implements Observer.
func (m MultiObserver) OnUpdate(u model.Update) {
	for _, o := range m {
		if o != nil {
			o.OnUpdate(u)
		}
	}
}
