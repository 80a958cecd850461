package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	"voxkey/audio"
	"voxkey/beep"
	"voxkey/clipboard"
	"voxkey/config"
	"voxkey/doctor"
	"voxkey/hotkey"
	"voxkey/log"
	"voxkey/session"
	"voxkey/shutdown"
	"voxkey/transcriber"
)

var version = "dev"

type options struct {
	setup     bool
	version   bool
	doctor    bool
	crash     bool
	test      bool
	benchmark string
	runs      int
	config    string
}

// registerFlags defines the command-line surface. Flags named in
// config.FlagKeys override the matching config key when given.
func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device (otherwise uses system default)")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&o.crash, "crash", false, "Trigger synthetic panic for testing crash logging")
	fs.BoolVar(&o.test, "test", false, "Test mode (headless, stdin-driven)")
	fs.StringVar(&o.benchmark, "benchmark", "", "Transcribe an audio file repeatedly and print timings")
	fs.IntVar(&o.runs, "runs", 3, "Number of benchmark iterations")
	fs.StringVar(&o.config, "config", "", "Read settings from this file instead of searching for config.yml")

	fs.String("key", "", "Groq API key (prefer GROQ_API_KEY)")
	fs.String("provider", "groq", "Transcription service: groq or openai")
	fs.String("model", "", "Transcription model (default: whisper-large-v3 on groq, whisper-1 on openai)")
	fs.String("lang", "", "Language code for transcription (e.g., en, es, fr). Empty = auto-detect")
	fs.String("mode", "normal", "Mode for Ctrl+Shift+Space: normal or summarize")
	fs.String("backend", "ffmpeg", "Audio backend: ffmpeg (M4A) or native (FLAC)")
	fs.String("device", "", "Use named microphone device")
	fs.String("sink", "paste", "Where text goes: paste (focused window) or stdout")
	fs.Bool("beep", true, "Play audible cues")
	fs.Bool("transcripts", false, "Keep transcribed text in transcribe_log.txt (owner-readable only)")
	fs.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	return o
}

func run() {
	fs := flag.CommandLine
	opts := registerFlags(fs)
	flag.Parse()

	if opts.version {
		fmt.Printf("voxkey %s\n", version)
		os.Exit(0)
	}

	loadOpts := []config.Option{config.WithFlags(fs)}
	if opts.config != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(opts.config))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if err := log.CaptureCrashes(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open crash log: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	if cfg.LogTranscripts {
		if err := log.KeepTranscripts(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not open transcript log: %v\n", err)
		}
	}

	if opts.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	if cfg.ConfigFile != "" {
		log.Info("config_file: " + cfg.ConfigFile)
	}

	if n, err := audio.SweepStale(cfg.ScratchDir()); err != nil {
		log.Warnf("scratch sweep failed: %v", err)
	} else if n > 0 {
		log.Infof("scratch_sweep: removed %d stale recordings", n)
	}

	client := transcriber.NewGroq(cfg.Groq())

	if opts.benchmark != "" {
		os.Exit(runBenchmark(client, opts.benchmark, opts.runs))
	}

	if opts.test {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: voxkey -test <wav-file>")
			os.Exit(1)
		}
		os.Exit(runTestMode(cfg, client, args[0]))
	}

	if opts.setup && cfg.Audio.Device == "" {
		if name, err := pickDevice(); err != nil {
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		} else {
			cfg.Audio.Device = name
		}
	}

	be, err := newBackend(cfg)
	if err != nil {
		log.Errorf("recorder init error: %v", err)
		fmt.Printf("Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer be.close()

	if opts.doctor {
		d := &doctor.Doctor{Recorder: be.rec, Client: client}
		os.Exit(d.Run())
	}

	if !cfg.Beep {
		beep.Disable()
	}
	go beep.Init()

	sink, closeSink := newSink(cfg)
	defer closeSink()

	go func() {
		if rtt := client.Warm(); rtt > 0 {
			log.Infof("api_warm: %s", rtt)
		}
	}()

	ctrl := session.New(be.rec, client, sink, session.WithPermission(be.permit))
	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	cues := watchEvents(events, os.Stdout)

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	fmt.Printf("voxkey %s ready. Hold %s to dictate, %s to summarize. Ctrl+C quits.\n",
		version, hotkey.Dictate, hotkey.Summarize)

	loop(ctrl, hk, cfg.DefaultMode(), shutdown.Notify())

	if err := ctrl.Close(); err != nil {
		log.Warnf("close: %v", err)
	}
	cues.Wait()
}

// loop routes hotkey edges to the controller until a signal arrives.
// Edges come off one channel so a quick tap is always handled press
// first, release second.
func loop(ctrl *session.Controller, hk hotkey.Hotkey, dictate transcriber.Mode, quit <-chan os.Signal) {
	for {
		select {
		case e := <-hk.Edges():
			log.Info("hotkey: " + e.String())
			if !e.Down {
				if err := ctrl.End(); err != nil && !errors.Is(err, session.ErrNotRecording) {
					log.Warnf("end: %v", err)
				}
				continue
			}
			mode := dictate
			if e.Combo == hotkey.Summarize {
				mode = transcriber.ModeSummarize
			}
			if err := ctrl.Begin(mode); err != nil {
				log.Warnf("begin: %v", err)
				if !errors.Is(err, session.ErrBusy) {
					fmt.Printf("Error: %v\n", err)
					go beep.PlayError()
				}
			}
		case <-quit:
			log.Info("shutdown_signal")
			return
		}
	}
}

func newSink(cfg *config.Config) (session.TextSink, func()) {
	if cfg.Sink == "stdout" {
		return clipboard.NewWriterSink(os.Stdout), func() {}
	}
	if err := clipboard.Init(); err != nil {
		log.Warnf("paste init failed: %v", err)
		fmt.Printf("Warning: paste init failed: %v\n", err)
		fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
	}
	s := clipboard.NewSink()
	return s, s.Close
}

// watchEvents plays cues and prints failures for every transition until
// events is closed.
func watchEvents(events <-chan session.Event, out *os.File) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			cue(ev)
			if ev.Err != nil {
				fmt.Fprintf(out, "Error: %v\n", ev.Err)
			}
		}
	}()
	return &wg
}

func cue(ev session.Event) {
	switch {
	case ev.Err != nil:
		go beep.PlayError()
	case ev.To == session.StateRecording:
		go beep.PlayStart()
	case ev.To == session.StateProcessing:
		go beep.PlayEnd()
	}
}
