package keyboard

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"keypipe/internal/compose"
	"keypipe/internal/config"
	"keypipe/internal/ime"
	"keypipe/internal/keysym"
	"keypipe/internal/layout"
	"keypipe/internal/logging"
	"keypipe/internal/metrics"
)

// Subsystem is the explicit context object for one physical keyboard. The
// platform layer owns it and passes every event-handling call through it;
// all mutable pipeline state — layout projections, compose engine, pending
// IME requests, the last-handled-press slot — is serialized through one
// dispatch goroutine, so no other locking exists in the pipeline.
type Subsystem struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Pipeline

	layoutState *layout.State
	composer    *compose.Engine
	correlator  *Correlator
	sink        *Sink
	transport   ime.Transport

	window  uint64
	focused bool

	tasks     chan func()
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// option state
	transportSet bool
	registry     prometheus.Registerer
	callback     Callback
}

// Option configures a Subsystem.
type Option func(*Subsystem)

// WithLogger overrides the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subsystem) { s.log = l }
}

// WithTransport injects an IME transport, bypassing backend detection.
// Passing nil disables the IME path entirely.
func WithTransport(t ime.Transport) Option {
	return func(s *Subsystem) {
		s.transport = t
		s.transportSet = true
	}
}

// WithCallback registers the application callback at construction.
func WithCallback(cb Callback) Option {
	return func(s *Subsystem) { s.callback = cb }
}

// WithMetricsRegistry registers pipeline metrics against a custom
// registry instead of the default one.
func WithMetricsRegistry(r prometheus.Registerer) Option {
	return func(s *Subsystem) { s.registry = r }
}

// New builds the keyboard subsystem from a configuration. A nil cfg uses
// the defaults.
func New(cfg *config.Config, opts ...Option) (*Subsystem, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Subsystem{
		cfg:   cfg,
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		level, _ := logging.ParseLevel(cfg.Logging.Level)
		format, _ := logging.ParseFormat(cfg.Logging.Format)
		logger, err := logging.New(&logging.Config{
			Level:     level,
			Format:    format,
			Output:    cfg.Logging.Output,
			FilePath:  cfg.Logging.FilePath,
			Component: "keyboard",
		})
		if err != nil {
			return nil, err
		}
		s.log = logger
	}

	mopts := []metrics.Option{metrics.WithEnabled(cfg.Metrics.Enabled)}
	if s.registry != nil {
		mopts = append(mopts, metrics.WithRegistry(s.registry))
	}
	s.metrics = metrics.NewPipeline(cfg.Metrics.Namespace, mopts...)

	km := layout.USKeymap()
	if cfg.Layout.KeymapPath != "" {
		loaded, err := layout.LoadKeymap(cfg.Layout.KeymapPath)
		if err != nil {
			return nil, fmt.Errorf("keyboard: load keymap: %w", err)
		}
		km = loaded
	}
	var fallback *layout.Keymap
	if cfg.Layout.DefaultKeymapPath != "" {
		loaded, err := layout.LoadKeymap(cfg.Layout.DefaultKeymapPath)
		if err != nil {
			return nil, fmt.Errorf("keyboard: load default keymap: %w", err)
		}
		fallback = loaded
	}
	s.layoutState = layout.NewState(km, fallback)

	s.composer = compose.NewEngine(s.loadComposeTable())

	s.sink = newSink(cfg.Sink.StickyKeys, cfg.Sink.StickyButtons, cfg.Sink.LockKeyMods, s.log, s.metrics)
	if s.callback != nil {
		s.sink.SetCallback(s.callback)
	}

	if !s.transportSet {
		timeout := time.Duration(cfg.Transport.RequestTimeoutMs) * time.Millisecond
		transport, err := ime.New(cfg.Transport.Backend, cfg.Transport.Program, timeout, s.log)
		if err != nil {
			return nil, err
		}
		s.transport = transport
	}
	if s.transport != nil {
		s.transport.SetHandlers(s.imeHandlers())
		s.log.Info("ime transport configured", "backend", s.transport.Name())
	} else {
		s.log.Info("no ime transport, all keys resolve locally")
	}

	s.correlator = newCorrelator(s.transport, s.resolveLocal, s.deliver, s.post, s.log, s.metrics)

	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// loadComposeTable builds the compose table per configuration; any
// failure degrades to no dead-key support rather than an error.
func (s *Subsystem) loadComposeTable() *compose.Table {
	if !s.cfg.Compose.Enabled {
		return nil
	}
	if path := s.cfg.Compose.TablePath; path != "" {
		table, err := compose.LoadTable(path)
		if err != nil {
			s.log.Warn("compose table unavailable, dead keys disabled", "path", path, "err", err)
			return nil
		}
		return table
	}
	locale := s.cfg.Compose.Locale
	if locale == "" {
		locale = compose.ResolveLocale()
	}
	table, err := compose.LoadForLocale(locale)
	if err != nil {
		s.log.Warn("compose table unavailable, dead keys disabled", "locale", locale, "err", err)
		return nil
	}
	s.log.Info("compose table loaded", "locale", locale, "sequences", table.Len())
	return table
}

// imeHandlers routes backend-originated signals into the dispatch
// context. Commits and preedit updates bypass the correlator and go
// straight to the sink.
func (s *Subsystem) imeHandlers() ime.Handlers {
	return ime.Handlers{
		Commit: func(text string) {
			s.post(func() { s.deliverIME(IMECommit, text) })
		},
		Preedit: func(segments []ime.PreeditSegment) {
			var b strings.Builder
			for _, seg := range segments {
				b.WriteString(seg.Text)
			}
			text := b.String()
			s.post(func() { s.deliverIME(IMEPreeditChanged, text) })
		},
	}
}

func (s *Subsystem) loop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-s.done:
			return
		}
	}
}

// post serializes fn into the dispatch goroutine. After Close it becomes
// a no-op.
func (s *Subsystem) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

// deliver forwards a resolved event to the sink under the current window.
func (s *Subsystem) deliver(ev ResolvedKeyEvent) {
	s.sink.Deliver(s.window, ev)
}

func (s *Subsystem) deliverIME(state IMEState, text string) {
	s.sink.Deliver(s.window, ResolvedKeyEvent{
		Key:      KeyUnknown,
		Action:   Press,
		Mods:     s.mods(),
		Text:     text,
		IMEState: state,
	})
}

func (s *Subsystem) mods() Mods {
	return Mods(s.layoutState.Mods())
}

// resolveLocal computes the local candidate for one transition: layout
// resolution, compose feeding for presses, text extraction, and the
// default-layout fallback for logical key identity.
func (s *Subsystem) resolveLocal(ev PhysicalKeyEvent) localResolution {
	eff, cleanSym, err := s.layoutState.Resolve(ev.Scancode)
	if err != nil {
		// Keys producing multiple simultaneous symbols are unsupported.
		s.metrics.EventDropped("ambiguous")
		s.log.Debug("dropping key with ambiguous symbol", "scancode", ev.Scancode)
		return localResolution{}
	}

	mods := s.mods()
	text := ""
	deliver := true

	if ev.Action != Release && eff != 0 {
		r := s.composer.Feed(eff)
		s.metrics.ComposeResult(r.Status.String())
		switch r.Status {
		case compose.Composing, compose.Cancelled:
			deliver = false
		case compose.Composed:
			text = r.Text
		case compose.Nothing:
			if mods&(ModControl|ModAlt|ModSuper) == 0 {
				if r := keysym.ToRune(eff); r != 0 {
					text = string(r)
				}
			}
		}
	}

	key := keyFromKeysym(cleanSym)
	if key == KeyUnknown && text == "" {
		// Recover a best-effort logical identity from the hardware
		// baseline layout so keybindings keep working independently of
		// the text layout.
		if def := s.layoutState.ResolveDefault(ev.Scancode); def != 0 {
			key = keyFromKeysym(def)
		}
	}

	return localResolution{
		event: ResolvedKeyEvent{
			Key:      key,
			Scancode: ev.Scancode,
			Action:   ev.Action,
			Mods:     mods,
			Text:     text,
		},
		deliver: deliver,
		keysym:  eff,
	}
}

// HandleKey feeds one raw hardware transition into the pipeline.
func (s *Subsystem) HandleKey(ev PhysicalKeyEvent) {
	s.post(func() {
		s.metrics.KeyProcessed(ev.Action.String())
		s.correlator.HandleKey(ev)
	})
}

// UpdateModifiers recomputes the layout projections from the platform's
// modifier and group state.
func (s *Subsystem) UpdateModifiers(depressed, latched, locked uint32, group, latchedGroup, lockedGroup int) {
	s.post(func() {
		s.layoutState.Update(depressed, latched, locked, group, latchedGroup, lockedGroup)
	})
}

// LoadKeymap replaces the active keymap whole, resetting the compose
// state and any in-flight IME correlation.
func (s *Subsystem) LoadKeymap(path string) error {
	km, err := layout.LoadKeymap(path)
	if err != nil {
		return err
	}
	s.post(func() {
		s.layoutState.SetKeymap(km)
		s.composer.Reset()
		s.correlator.Reset()
		s.log.Info("keymap replaced", "name", km.Name)
	})
	return nil
}

// SetFocus records the focused window and forwards the change to the
// input method. Losing focus clears the last-handled-press slot and
// invalidates in-flight requests.
func (s *Subsystem) SetFocus(window uint64, focused bool) {
	s.post(func() {
		s.window = window
		s.focused = focused
		if !focused {
			s.correlator.Reset()
		}
		if s.transport != nil {
			s.transport.SetFocused(focused)
		}
	})
}

// SetCursorGeometry forwards the caret rectangle to the input method so
// it can place candidate windows.
func (s *Subsystem) SetCursorGeometry(x, y, w, h int32) {
	s.post(func() {
		if s.transport != nil {
			s.transport.SetCursorGeometry(x, y, w, h)
		}
	})
}

// SetCallback registers the application callback.
func (s *Subsystem) SetCallback(cb Callback) {
	s.post(func() { s.sink.SetCallback(cb) })
}

// SetStickyKeys toggles sticky-key latching at runtime.
func (s *Subsystem) SetStickyKeys(enabled bool) {
	s.post(func() { s.sink.SetStickyKeys(enabled) })
}

// SetLockKeyMods toggles caps-lock/num-lock reporting at runtime.
func (s *Subsystem) SetLockKeyMods(enabled bool) {
	s.post(func() { s.sink.SetLockKeyMods(enabled) })
}

// HandleButton records a mouse button transition for sticky-button state
// queries.
func (s *Subsystem) HandleButton(button uint32, pressed bool) {
	s.post(func() { s.sink.TrackButton(button, pressed) })
}

// KeyState reports the last delivered action for a scancode, consuming a
// sticky latch if one is set. It blocks on the dispatch goroutine and
// must not be called from inside the event callback, which runs on that
// goroutine; doing so deadlocks.
func (s *Subsystem) KeyState(scancode uint32) Action {
	ch := make(chan Action, 1)
	s.post(func() { ch <- s.sink.KeyState(scancode) })
	select {
	case a := <-ch:
		return a
	case <-s.done:
		return Release
	}
}

// ButtonState reports a button's state, consuming a sticky latch if set.
// Like KeyState, it must not be called from inside the event callback.
func (s *Subsystem) ButtonState(button uint32) Action {
	ch := make(chan Action, 1)
	s.post(func() { ch <- s.sink.ButtonState(button) })
	select {
	case a := <-ch:
		return a
	case <-s.done:
		return Release
	}
}

// Sync blocks until every task posted before it has run. Used by tests
// and shutdown paths as a dispatch barrier.
func (s *Subsystem) Sync() {
	ch := make(chan struct{})
	s.post(func() { close(ch) })
	select {
	case <-ch:
	case <-s.done:
	}
}

// Close stops the dispatch loop and tears down the transport.
func (s *Subsystem) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.transport != nil {
			s.transport.Close()
		}
	})
	return nil
}
