package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var errPickCancelled = errors.New("device selection cancelled")

// picker is the cursor state of the device menu.
type picker struct {
	devices []DeviceInfo
	cursor  int
}

// key applies one keypress read from a raw terminal. It returns the
// chosen device once Enter is pressed.
func (p *picker) key(buf []byte) (*DeviceInfo, error) {
	switch {
	case len(buf) == 1 && buf[0] == '\r':
		return &p.devices[p.cursor], nil
	case len(buf) == 1 && (buf[0] == 3 || buf[0] == 'q'): // Ctrl+C, q
		return nil, errPickCancelled
	case len(buf) == 1 && buf[0] == 'j', len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
		p.cursor = min(p.cursor+1, len(p.devices)-1)
	case len(buf) == 1 && buf[0] == 'k', len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
		p.cursor = max(p.cursor-1, 0)
	}
	return nil, nil
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select input device (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.devices {
		btTag := ""
		if IsBluetooth(d.Name) {
			btTag = " \x1b[33m[headset profile, lower quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, btTag)
		}
	}
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	return pick(&picker{devices: devices}, os.Stdin, os.Stdout)
}

func pick(p *picker, in io.Reader, out io.Writer) (*DeviceInfo, error) {
	p.render(out)
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		dev, err := p.key(buf[:n])
		if dev != nil || err != nil {
			fmt.Fprint(out, "\r\n")
			return dev, err
		}
		fmt.Fprintf(out, "\x1b[%dA", len(p.devices)+2)
		p.render(out)
	}
}
