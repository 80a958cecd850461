//go:build !linux

package hotkey

import (
	"fmt"

	"golang.design/x/hotkey"
)

// xHotkey registers one OS-level hotkey per combo. On macOS it must be
// registered from the main thread (see mainthread in main_other.go).
type xHotkey struct {
	keys  map[Combo]*hotkey.Hotkey
	edges chan Edge
	stop  chan struct{}
}

func New() Hotkey {
	mods := []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}
	return &xHotkey{
		keys: map[Combo]*hotkey.Hotkey{
			Dictate:   hotkey.New(mods, hotkey.KeySpace),
			Summarize: hotkey.New(mods, hotkey.KeyReturn),
		},
		edges: make(chan Edge, edgeBuffer),
	}
}

func (h *xHotkey) Register() error {
	h.stop = make(chan struct{})
	for combo, hk := range h.keys {
		if err := hk.Register(); err != nil {
			h.Unregister()
			return fmt.Errorf("registering %s: %w", combo, err)
		}
		go h.forward(combo, hk)
	}
	return nil
}

func (h *xHotkey) forward(combo Combo, hk *hotkey.Hotkey) {
	for {
		select {
		case <-h.stop:
			return
		case <-hk.Keydown():
			send(h.edges, Edge{Combo: combo, Down: true})
		case <-hk.Keyup():
			send(h.edges, Edge{Combo: combo})
		}
	}
}

func (h *xHotkey) Unregister() {
	if h.stop != nil {
		select {
		case <-h.stop:
			return
		default:
			close(h.stop)
		}
	}
	for _, hk := range h.keys {
		hk.Unregister()
	}
}

func (h *xHotkey) Edges() <-chan Edge {
	return h.edges
}

func Diagnose() (string, error) {
	return "hotkey support available (Ctrl+Shift+Space, Ctrl+Shift+Enter)", nil
}
