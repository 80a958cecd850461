package hotkey

// Combo identifies which shortcut was pressed.
type Combo int

const (
	// Dictate is Ctrl+Shift+Space.
	Dictate Combo = iota
	// Summarize is Ctrl+Shift+Enter.
	Summarize
)

func (c Combo) String() string {
	switch c {
	case Dictate:
		return "ctrl+shift+space"
	case Summarize:
		return "ctrl+shift+enter"
	default:
		return "unknown"
	}
}

// Edge is one press (Down) or release of a combo.
type Edge struct {
	Combo Combo
	Down  bool
}

func (e Edge) String() string {
	if e.Down {
		return e.Combo.String() + " down"
	}
	return e.Combo.String() + " up"
}

// Hotkey reports presses and releases of the global shortcuts on a
// single channel, in the order they happened.
type Hotkey interface {
	Register() error
	Unregister()
	Edges() <-chan Edge
}

// edgeBuffer holds a few taps while the consumer is busy starting or
// stopping a capture.
const edgeBuffer = 16

// send delivers e unless the buffer is full; a held key must never
// stall the reader.
func send(ch chan Edge, e Edge) {
	select {
	case ch <- e:
	default:
	}
}
