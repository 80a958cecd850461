package clipboard

import (
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
	kbMu   sync.Mutex
)

// Init creates the virtual keyboard. On Linux this is a uinput device
// that the compositor needs a moment to pick up, so call Init early.
func Init() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
		if kbErr == nil && runtime.GOOS == "linux" {
			time.Sleep(200 * time.Millisecond)
		}
	})
	return kbErr
}

// Paste synthesizes the platform paste shortcut: Cmd+V on macOS,
// Ctrl+V elsewhere.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	kb.Clear()
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return "keyboard event binding OK (Cmd+V)", nil
	}
	return "keyboard event binding OK (Ctrl+V)", nil
}
