// Package widget provides a named-object convenience layer over the
// display engine. A Widget addresses one object on one page by page id,
// component id and object name, and exposes typed accessors for its
// common fields.
package widget

import (
	"fmt"

	"nextion-host/pkg/display"
	"nextion-host/pkg/protocol"
)

// Widget is one addressable object on the display.
type Widget struct {
	eng       *display.Engine
	page      byte
	component byte
	name      string
	pageName  string

	onPush func()
	onPop  func()
}

// New builds a widget bound to eng. name is the object name as declared
// in the display project.
func New(eng *display.Engine, page, component byte, name string) *Widget {
	return &Widget{eng: eng, page: page, component: component, name: name}
}

// NewOnPage builds a widget addressed globally as pageName.name, so its
// fields stay reachable while another page is shown.
func NewOnPage(eng *display.Engine, page, component byte, pageName, name string) *Widget {
	w := New(eng, page, component, name)
	w.pageName = pageName
	return w
}

// FullName returns the object name used in commands, prefixed with the
// page name when one was given.
func (w *Widget) FullName() string {
	if w.pageName != "" {
		return w.pageName + "." + w.name
	}
	return w.name
}

// Page returns the widget's page id.
func (w *Widget) Page() byte { return w.page }

// Component returns the widget's component id.
func (w *Widget) Component() byte { return w.component }

// OnPush installs the handler run when the widget is touched.
func (w *Widget) OnPush(fn func()) { w.onPush = fn }

// OnPop installs the handler run when the touch is released.
func (w *Widget) OnPop(fn func()) { w.onPop = fn }

func (w *Widget) attr(field string) string {
	return w.FullName() + "." + field
}

// SetText assigns the txt field and waits for the command ack.
func (w *Widget) SetText(value string) error {
	if err := w.eng.SendCommand(protocol.FormatSetText(w.attr("txt"), value)); err != nil {
		return err
	}
	return w.eng.RecvAck(0)
}

// Text reads the txt field.
func (w *Widget) Text() (string, error) {
	if err := w.eng.SendCommand(protocol.FormatGet(w.attr("txt"))); err != nil {
		return "", err
	}
	return w.eng.RecvText(0, true)
}

// SetValue assigns the val field and waits for the command ack.
func (w *Widget) SetValue(value int32) error {
	if err := w.eng.SendCommand(protocol.FormatSetNumber(w.attr("val"), value)); err != nil {
		return err
	}
	return w.eng.RecvAck(0)
}

// Value reads the val field.
func (w *Widget) Value() (int32, error) {
	if err := w.eng.SendCommand(protocol.FormatGet(w.attr("val"))); err != nil {
		return 0, err
	}
	return w.eng.RecvNumber(0)
}

// SetVisible shows or hides the widget.
func (w *Widget) SetVisible(visible bool) error {
	v := 0
	if visible {
		v = 1
	}
	if err := w.eng.SendCommand(fmt.Sprintf("vis %s,%d", w.FullName(), v)); err != nil {
		return err
	}
	return w.eng.RecvAck(0)
}

// Refresh redraws the widget.
func (w *Widget) Refresh() error {
	if err := w.eng.SendCommand("ref " + w.FullName()); err != nil {
		return err
	}
	return w.eng.RecvAck(0)
}

// Width reads the widget's width in pixels.
func (w *Widget) Width() (int32, error) {
	if err := w.eng.SendCommand(protocol.FormatGet(w.attr("w"))); err != nil {
		return 0, err
	}
	return w.eng.RecvNumber(0)
}

// Height reads the widget's height in pixels.
func (w *Widget) Height() (int32, error) {
	if err := w.eng.SendCommand(protocol.FormatGet(w.attr("h"))); err != nil {
		return 0, err
	}
	return w.eng.RecvNumber(0)
}

// SetTextAsync assigns the txt field without blocking. Callbacks run from
// the engine's driving goroutine.
func (w *Widget) SetTextAsync(value string, onSuccess func(), onFailure func(error)) error {
	return w.eng.SetText(w.attr("txt"), value, onSuccess, onFailure, 0)
}

// SetValueAsync assigns the val field without blocking.
func (w *Widget) SetValueAsync(value int32, onSuccess func(), onFailure func(error)) error {
	return w.eng.SetNumber(w.attr("val"), value, onSuccess, onFailure, 0)
}

// TextAsync reads the txt field without blocking.
func (w *Widget) TextAsync(onText func(string), onFailure func(error)) error {
	return w.eng.GetText(protocol.FormatGet(w.attr("txt")), true, onText, onFailure, 0)
}

// ValueAsync reads the val field without blocking.
func (w *Widget) ValueAsync(onValue func(int32), onFailure func(error)) error {
	return w.eng.GetNumber(protocol.FormatGet(w.attr("val")), onValue, onFailure, 0)
}
