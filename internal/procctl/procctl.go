// Package procctl is the phone-call core's process controller: it wires
// every other component together, owns their lifetimes, and serves the
// termination/reload signals spec.md §6 assigns it. Grounded on the
// teacher's cmd/flowpbx/main.go wiring and ordered-shutdown shape, adapted
// from an HTTP/SIP server pair to this core's GPIO/signalling components.
package procctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotarycore/phonecore/internal/audio"
	"github.com/rotarycore/phonecore/internal/callmanager"
	"github.com/rotarycore/phonecore/internal/callstore"
	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/dial"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/gpio"
	"github.com/rotarycore/phonecore/internal/hook"
	"github.com/rotarycore/phonecore/internal/ringer"
	"github.com/rotarycore/phonecore/internal/signalling"
)

// shutdownTimeout bounds the ordered teardown in Run.
const shutdownTimeout = 5 * time.Second

// ReloadFunc re-reads the surrounding application's configuration document
// and returns the freshly decoded value. The core never parses a document
// itself (spec.md's "configuration file parsing" Non-goal); supplying this
// is how a real deployment wires the reload signal to its own file format.
type ReloadFunc func(ctx context.Context) (*config.Config, error)

// Deps are the fully-constructed components the controller takes ownership
// of. Each is built with its real or mock implementation by the caller
// (cmd/phonecore) before New is called — the controller itself never
// chooses between them, matching the DESIGN NOTES' "two concrete variants
// selected at construction" guidance.
type Deps struct {
	Port   gpio.Port
	Device audio.Device
	Client signalling.Client

	Dial    *dial.Reader
	Hook    *hook.Monitor
	Ringer  *ringer.Ringer
	Manager *callmanager.Manager

	Bus   *events.Bus
	DB    *callstore.DB
	Store *callstore.Store

	// Reload re-reads configuration on the reload signal. Nil disables
	// the reload path (a warning is logged, no-op otherwise).
	Reload ReloadFunc
}

// Controller owns every component's lifetime for the process's duration.
type Controller struct {
	logger *slog.Logger

	port   gpio.Port
	device audio.Device
	client signalling.Client

	dial   *dial.Reader
	hook   *hook.Monitor
	ringer *ringer.Ringer
	mgr    *callmanager.Manager

	bus   *events.Bus
	db    *callstore.DB
	store *callstore.Store

	reload ReloadFunc
}

// New constructs a Controller from deps. It does not start anything; call
// Run to do so.
func New(deps Deps) *Controller {
	return &Controller{
		logger: slog.Default().With("component", "procctl"),
		port:   deps.Port,
		device: deps.Device,
		client: deps.Client,
		dial:   deps.Dial,
		hook:   deps.Hook,
		ringer: deps.Ringer,
		mgr:    deps.Manager,
		bus:    deps.Bus,
		db:     deps.DB,
		store:  deps.Store,
		reload: deps.Reload,
	}
}

// Run starts every component, then blocks serving OS signals until a quit
// signal arrives or ctx is cancelled, performing the ordered shutdown
// spec.md §4.8 describes (signalling client, ringer, hook monitor and dial
// reader, GPIO port, audio device, database) before returning. SIGINT/SIGTERM request a graceful quit; SIGHUP
// requests a configuration reload via Reload and stays running.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	mgrCtx, cancelMgr := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.recoverInvariant()
		c.mgr.Run(mgrCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			cancelMgr()
			wg.Wait()
			c.shutdown()
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				c.handleReload(ctx)
				continue
			}
			c.logger.Info("received termination signal", "signal", sig.String())
			cancelMgr()
			wg.Wait()
			c.shutdown()
			return nil
		}
	}
}

// recoverInvariant implements spec.md §7's class-7 propagation rule: the
// process controller recovers only to log the violation, then re-panics —
// it never continues running in an inconsistent state.
func (c *Controller) recoverInvariant() {
	r := recover()
	if r == nil {
		return
	}
	if iv, ok := r.(*coreerr.InvariantViolation); ok {
		c.logger.Error("invariant violation, terminating", "message", iv.Msg)
	}
	panic(r)
}

func (c *Controller) start(ctx context.Context) error {
	if err := c.hook.Start(); err != nil {
		return fmt.Errorf("starting hook monitor: %w", err)
	}
	if err := c.dial.Start(); err != nil {
		return fmt.Errorf("starting dial reader: %w", err)
	}
	if err := c.ringer.Start(); err != nil {
		return fmt.Errorf("starting ringer: %w", err)
	}
	if err := c.client.Register(ctx); err != nil {
		return fmt.Errorf("registering with signalling peer: %w", err)
	}
	return nil
}

func (c *Controller) handleReload(ctx context.Context) {
	if c.reload == nil {
		c.logger.Warn("received reload signal but no reload source is configured")
		return
	}
	cfg, err := c.reload(ctx)
	if err != nil {
		c.logger.Error("reload failed, keeping current configuration", "error", err)
		return
	}

	sections := []string{
		config.SectionSIP, config.SectionHardware, config.SectionTiming,
		config.SectionSpeedDial, config.SectionAllowlist, config.SectionAudio, config.SectionGain,
	}
	for _, section := range sections {
		reloadCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		err := c.mgr.ApplyConfig(reloadCtx, section, sectionMutator(section, cfg))
		cancel()
		if err != nil {
			c.logger.Error("applying reloaded configuration section failed", "section", section, "error", err)
		}
	}
}

// sectionMutator copies one section of cfg into the manager's live
// configuration, leaving every other section untouched — ApplyConfig
// validates the full candidate but only diffs the named section.
func sectionMutator(section string, cfg *config.Config) func(*config.Config) {
	return func(dst *config.Config) {
		switch section {
		case config.SectionSIP:
			dst.SIP = cfg.SIP
		case config.SectionHardware:
			dst.Hardware = cfg.Hardware
		case config.SectionTiming:
			dst.Timing = cfg.Timing
		case config.SectionSpeedDial:
			dst.SpeedDial = cfg.SpeedDial
		case config.SectionAllowlist:
			dst.AllowList = cfg.AllowList
		case config.SectionAudio:
			dst.Audio = cfg.Audio
		case config.SectionGain:
			dst.Gain = cfg.Gain
		}
	}
}

// shutdown performs the ordered teardown spec.md §4.8 names: signalling
// client, ringer (which forces ringer_enable low), GPIO inputs, audio
// device, then the persistence layer.
func (c *Controller) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.client.Shutdown(ctx); err != nil {
		c.logger.Error("signalling client shutdown error", "error", err)
	}
	c.ringer.Stop()
	if err := c.hook.Stop(); err != nil {
		c.logger.Error("stopping hook monitor failed", "error", err)
	}
	if err := c.dial.Stop(); err != nil {
		c.logger.Error("stopping dial reader failed", "error", err)
	}
	if err := c.port.Close(); err != nil {
		c.logger.Error("closing gpio port failed", "error", err)
	}
	if err := c.device.Close(); err != nil {
		c.logger.Error("closing audio device failed", "error", err)
	}
	if err := c.db.Close(); err != nil {
		c.logger.Error("closing database failed", "error", err)
	}
	c.logger.Info("phonecore stopped")
}
