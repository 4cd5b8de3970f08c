package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the grid bindings. Printable keys are left free so that
// typing over a selected cell starts an edit.
type keyMap struct {
	quit        key.Binding
	toggleHelp  key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	moveLeft    key.Binding
	moveRight   key.Binding
	extendUp    key.Binding
	extendDown  key.Binding
	extendLeft  key.Binding
	extendRight key.Binding
	next        key.Binding
	prev        key.Binding
	edit        key.Binding
	confirmUp   key.Binding
	cancel      key.Binding
	erase       key.Binding
	clear       key.Binding
	copyValue   key.Binding
	save        key.Binding
	formulas    key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("ctrl+c", "ctrl+q"), key.WithHelp("ctrl+q", "quit")),
		toggleHelp:  key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "toggle help")),
		moveUp:      key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		moveDown:    key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		moveLeft:    key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "left")),
		moveRight:   key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "right")),
		extendUp:    key.NewBinding(key.WithKeys("shift+up"), key.WithHelp("shift+↑", "extend up")),
		extendDown:  key.NewBinding(key.WithKeys("shift+down"), key.WithHelp("shift+↓", "extend down")),
		extendLeft:  key.NewBinding(key.WithKeys("shift+left"), key.WithHelp("shift+←", "extend left")),
		extendRight: key.NewBinding(key.WithKeys("shift+right"), key.WithHelp("shift+→", "extend right")),
		next:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next cell")),
		prev:        key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous cell")),
		edit:        key.NewBinding(key.WithKeys("enter", "f2"), key.WithHelp("enter/f2", "edit")),
		confirmUp:   key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("shift+enter", "confirm, move up")),
		cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel edit")),
		erase:       key.NewBinding(key.WithKeys("backspace"), key.WithHelp("backspace", "delete char")),
		clear:       key.NewBinding(key.WithKeys("delete", "backspace"), key.WithHelp("del", "clear")),
		copyValue:   key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy value")),
		save:        key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		formulas:    key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("ctrl+f", "show formulas")),
	}
}

// ShortHelp returns the bindings shown in the one-line help bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.edit, k.next, k.clear, k.copyValue, k.save, k.toggleHelp, k.quit}
}

// FullHelp returns the grouped bindings shown when help is expanded.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.moveLeft, k.moveRight, k.next, k.prev},
		{k.extendUp, k.extendDown, k.extendLeft, k.extendRight, k.clear},
		{k.edit, k.confirmUp, k.cancel, k.erase},
		{k.copyValue, k.save, k.formulas, k.toggleHelp, k.quit},
	}
}
