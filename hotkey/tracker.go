package hotkey

// Linux input event key codes.
const (
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
	keyEnter   = 28
	keyKPEnter = 96
)

const (
	keyRelease = 0
	keyPress   = 1
)

// tracker turns raw key events into combo presses and releases. Only one
// combo is held at a time; pressing the other trigger key while one is
// held is ignored until it is released.
type tracker struct {
	ctrl, shift bool
	held        bool
	active      Combo
}

// key processes one event and reports whether it completed an edge.
// Autorepeat events (value 2) only keep modifier state.
func (t *tracker) key(code uint16, value int32) (Edge, bool) {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		t.ctrl = pressed || (!released && t.ctrl)
	case keyLShift, keyRShift:
		t.shift = pressed || (!released && t.shift)
	case keySpace, keyEnter, keyKPEnter:
		combo := Dictate
		if code != keySpace {
			combo = Summarize
		}
		if pressed && !t.held && t.ctrl && t.shift {
			t.held, t.active = true, combo
			return Edge{Combo: combo, Down: true}, true
		}
		if released && t.held && t.active == combo {
			t.held = false
			return Edge{Combo: combo}, true
		}
	}
	return Edge{}, false
}
