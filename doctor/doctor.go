package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"voxkey/audio"
	"voxkey/clipboard"
	"voxkey/hotkey"
	"voxkey/transcriber"
)

const steps = 4

// Doctor runs interactive checks of every piece a session depends on.
type Doctor struct {
	Recorder audio.Recorder
	Client   transcriber.Client
	In       io.Reader
	Out      io.Writer

	in *bufio.Reader
}

// Run executes the checks in order, stopping at the first failure, and
// returns an exit code (0=all pass, 1=any fail).
func (d *Doctor) Run() int {
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}
	d.in = bufio.NewReader(d.In)

	resetTerminal()
	setupInterruptHandler()

	d.println("voxkey doctor - interactive system diagnostics")
	d.println("==============================================")

	allPass := d.checkHotkey()
	var art *audio.Artifact
	if allPass {
		art = d.checkCapture()
		allPass = art != nil
	}
	if allPass {
		allPass = d.checkTranscription(art)
	}
	if art != nil {
		art.Remove()
	}
	if allPass {
		allPass = d.checkClipboard()
	}

	d.println()
	if allPass {
		d.println("All checks passed!")
		return 0
	}
	d.println("Some checks failed. See details above.")
	return 1
}

func (d *Doctor) println(a ...any)               { fmt.Fprintln(d.Out, a...) }
func (d *Doctor) printf(format string, a ...any) { fmt.Fprintf(d.Out, format, a...) }

func (d *Doctor) step(n int, title string) {
	d.println()
	d.printf("[%d/%d] %s\n", n, steps, title)
}

func (d *Doctor) confirm(question string) bool {
	d.printf("%s [y/n]: ", question)
	answer, _ := d.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func (d *Doctor) checkHotkey() bool {
	d.step(1, "Hotkey detection")
	d.println("Press Ctrl+Shift+Space or Ctrl+Shift+Enter...")

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		d.printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-hk.Edges():
			if !e.Down {
				continue
			}
			d.printf("  PASS: %s detected\n", e.Combo)
			// Wait for keyup to avoid triggering next step
			waitRelease(hk, 5*time.Second)
			// Reset terminal after hotkey - it may leave terminal in raw mode
			resetTerminal()
			return true
		case <-timeout:
			d.println("  FAIL: timeout waiting for hotkey")
			return false
		}
	}
}

func waitRelease(hk hotkey.Hotkey, limit time.Duration) {
	timeout := time.After(limit)
	for {
		select {
		case e := <-hk.Edges():
			if !e.Down {
				return
			}
		case <-timeout:
			return
		}
	}
}

func (d *Doctor) checkCapture() *audio.Artifact {
	d.step(2, "Microphone capture")
	d.printf("Press Enter and speak for 3 seconds...")
	d.in.ReadString('\n')

	h, err := d.Recorder.Start()
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return nil
	}

	d.printf("  Recording")
	for range 6 {
		time.Sleep(500 * time.Millisecond)
		d.printf(".")
	}
	art, err := d.Recorder.Stop(h)
	d.println(" done")
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return nil
	}

	d.printf("  PASS: recorded %.1f KB of %s (%s)\n", float64(art.Size)/1024, art.Format, art.Duration.Round(10*time.Millisecond))
	if art.Silent {
		d.println("  Warning: no speech detected, check the input device")
	}
	return art
}

func (d *Doctor) checkTranscription(art *audio.Artifact) bool {
	d.step(3, "Transcription")

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	result, err := d.Client.Transcribe(ctx, art, transcriber.ModeNormal)
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	d.printf("\n  Transcribed text: %s\n", text)
	if m := result.Metrics; m != nil {
		d.printf("  Round trip: %s (ttfb %s), requests left: %s\n\n",
			m.Total.Round(time.Millisecond), m.TTFB.Round(time.Millisecond), result.RateLimit)
	}

	if d.confirm("Is this correct?") {
		d.println("  PASS: transcription verified by user")
		return true
	}
	d.println("  FAIL: transcription not confirmed")
	return false
}

func (d *Doctor) checkClipboard() bool {
	d.step(4, "Clipboard and paste")

	if !clipboard.Available() {
		d.println("  FAIL: no clipboard tool found (install xclip, xsel or wl-clipboard)")
		return false
	}
	msg, err := clipboard.Verify()
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		d.println("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}
	d.printf("  %s\n", msg)

	sentinel := fmt.Sprintf("voxkey-preserve-%d", time.Now().UnixNano())
	if err := roundTrip(sentinel); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}

	d.println("Focus on a text editor window...")
	for i := 5; i > 0; i-- {
		d.printf("  %d...\n", i)
		time.Sleep(1 * time.Second)
	}

	sink := clipboard.NewSink()
	if err := sink.Insert("voxkey-doctor-test"); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	sink.Close()

	// Reset terminal and use fresh reader for confirmation
	resetTerminal()
	d.println()
	if !d.confirm(`Did the text "voxkey-doctor-test" appear?`) {
		d.println("  FAIL: clipboard/paste not confirmed")
		return false
	}
	d.println("  PASS: clipboard and paste verified by user")

	restored, err := clipboard.Read()
	if err != nil {
		d.printf("  FAIL: could not read clipboard after restore: %v\n", err)
		return false
	}
	if restored != sentinel {
		d.printf("  FAIL: clipboard not preserved (got %q, want %q)\n", restored, sentinel)
		return false
	}
	d.println("  PASS: clipboard preservation verified")
	return true
}

// roundTrip writes s to the clipboard and reads it back. Clipboard tools
// can hang when the compositor is unreachable, hence the timeout.
func roundTrip(s string) error {
	ch := make(chan error, 1)
	go func() {
		if err := clipboard.Copy(s); err != nil {
			ch <- fmt.Errorf("clipboard write failed: %w", err)
			return
		}
		got, err := clipboard.Read()
		if err != nil {
			ch <- fmt.Errorf("clipboard read failed: %w", err)
			return
		}
		if got != s {
			ch <- fmt.Errorf("clipboard mismatch: wrote %q, got %q", s, got)
			return
		}
		ch <- nil
	}()

	select {
	case err := <-ch:
		return err
	case <-time.After(3 * time.Second):
		return fmt.Errorf("clipboard timed out (clipboard tool hung - compositor not accessible?)")
	}
}
