// Command zenplay plays a media URL in an SDL window.
//
//	zenplay [-set path=value ...] URL
//
// Keys: space toggles pause, left/right seek by 10 seconds, m toggles mute,
// q or escape quits.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/player"
	"github.com/zsiec/zenplay/state"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
	seekStep      = 10 * time.Second
)

// optionFlags collects repeatable -set path=value overrides.
type optionFlags []string

func (o *optionFlags) String() string { return strings.Join(*o, ",") }

func (o *optionFlags) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	runtime.LockOSThread()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var opts optionFlags
	flag.Var(&opts, "set", "config override as path=value (repeatable)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: zenplay [-set path=value ...] URL")
		os.Exit(2)
	}
	url := flag.Arg(0)

	cfg := config.Default()
	for _, o := range opts {
		path, value, ok := strings.Cut(o, "=")
		if !ok {
			slog.Error("malformed -set option", "option", o)
			os.Exit(2)
		}
		if err := cfg.Set(path, value); err != nil {
			slog.Error("bad config override", "error", err)
			os.Exit(2)
		}
	}

	if err := run(url, cfg); err != nil {
		slog.Error("playback failed", "error", err)
		os.Exit(1)
	}
}

func run(url string, cfg config.Config) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("sdl init: %w", err)
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("ZenPlay", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		defaultWidth, defaultHeight, sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer window.Destroy()

	p := player.New(cfg, slog.Default())
	p.StateManager().Subscribe(func(from, to state.State) {
		slog.Debug("state change", "from", from.String(), "to", to.String())
	})

	if err := p.Open(url, window, defaultWidth, defaultHeight); err != nil {
		return err
	}
	defer p.Close()

	if err := p.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			return nil
		default:
		}

		switch p.State() {
		case state.Stopped, state.Error:
			return nil
		}

		event := sdl.WaitEventTimeout(100)
		if event == nil {
			continue
		}
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return nil

		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN {
				continue
			}
			switch e.Keysym.Sym {
			case sdl.K_q, sdl.K_ESCAPE:
				return nil
			case sdl.K_SPACE:
				if p.State() == state.Paused {
					_ = p.Resume()
				} else {
					_ = p.Pause()
				}
			case sdl.K_m:
				p.SetMuted(!p.Muted())
			case sdl.K_LEFT:
				target := p.Position() - seekStep
				if target < 0 {
					target = 0
				}
				p.Seek(target)
			case sdl.K_RIGHT:
				p.Seek(p.Position() + seekStep)
			}

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				p.Resize(int(e.Data1), int(e.Data2))
			}
		}
	}
}
