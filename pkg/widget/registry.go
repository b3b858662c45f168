package widget

// Registry routes touch events to the widgets registered with it. Install
// it on the engine with SetTouchDispatcher.
type Registry struct {
	widgets []*Widget
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers widgets for touch dispatch. A widget with no push or pop
// handler is still matched, the event is just dropped.
func (r *Registry) Add(ws ...*Widget) {
	r.widgets = append(r.widgets, ws...)
}

// DispatchTouch delivers one touch event to every widget whose page and
// component ids match.
func (r *Registry) DispatchTouch(page, component byte, pressed bool) {
	for _, w := range r.widgets {
		if w.page != page || w.component != component {
			continue
		}
		if pressed {
			if w.onPush != nil {
				w.onPush()
			}
		} else if w.onPop != nil {
			w.onPop()
		}
	}
}
