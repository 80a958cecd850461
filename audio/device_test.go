package audio

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// keys replays one keypress per Read, like a raw terminal.
type keys struct{ presses []string }

func (k *keys) Read(p []byte) (int, error) {
	if len(k.presses) == 0 {
		return 0, io.EOF
	}
	n := copy(p, k.presses[0])
	k.presses = k.presses[1:]
	return n, nil
}

func TestPick(t *testing.T) {
	devices := []DeviceInfo{{Name: "built-in"}, {Name: "usb"}, {Name: "AirPods"}}
	down, up := "\x1b[B", "\x1b[A"

	tests := []struct {
		name    string
		presses []string
		want    string
		wantErr error
	}{
		{"enter picks first", []string{"\r"}, "built-in", nil},
		{"arrow down", []string{down, "\r"}, "usb", nil},
		{"clamped at bottom", []string{down, down, down, down, "\r"}, "AirPods", nil},
		{"clamped at top", []string{up, "k", "\r"}, "built-in", nil},
		{"vim keys", []string{"j", "j", "k", "\r"}, "usb", nil},
		{"q cancels", []string{"j", "q"}, "", errPickCancelled},
		{"ctrl+c cancels", []string{"\x03"}, "", errPickCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			dev, err := pick(&picker{devices: devices}, &keys{presses: tt.presses}, &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if dev == nil || dev.Name != tt.want {
				t.Errorf("picked %v, want %s", dev, tt.want)
			}
		})
	}
}

func TestPickInputClosed(t *testing.T) {
	var out strings.Builder
	_, err := pick(&picker{devices: []DeviceInfo{{Name: "a"}, {Name: "b"}}}, &keys{}, &out)
	if err == nil {
		t.Fatal("expected error when input ends")
	}
}

func TestPickerRenderMarksBluetooth(t *testing.T) {
	var out strings.Builder
	p := &picker{devices: []DeviceInfo{{Name: "mic"}, {Name: "AirPods Pro"}}}
	p.render(&out)
	if !strings.Contains(out.String(), "▶ mic") {
		t.Error("cursor not on first device")
	}
	if !strings.Contains(out.String(), "headset profile") {
		t.Error("bluetooth device not tagged")
	}
}
