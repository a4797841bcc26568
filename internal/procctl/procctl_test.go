package procctl

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotarycore/phonecore/internal/audio/audiomock"
	"github.com/rotarycore/phonecore/internal/callmanager"
	"github.com/rotarycore/phonecore/internal/callstore"
	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/dial"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/gpio/gpiomock"
	"github.com/rotarycore/phonecore/internal/hook"
	"github.com/rotarycore/phonecore/internal/ringer"
	"github.com/rotarycore/phonecore/internal/signalling/simclient"
)

func testConfig() *config.Config {
	return &config.Config{
		SIP:       config.SIPConfig{Host: "sip.example.org", Port: 5060, User: "1000"},
		Hardware:  config.HardwareConfig{HookPin: 1, PulsePin: 2, RingerPin: 3},
		Timing: config.TimingConfig{
			PulseTimeoutMS: 20, InterDigitMS: 40, HookDebounceMS: 15,
			RingOnMS: 60, RingOffMS: 10, CallAttemptMS: 2000, RegistrationMS: 1000,
		},
		SpeedDial: map[string]string{"1": "+15551234567"},
		AllowList: []string{"+15551234567"},
		Audio: config.AudioConfig{
			RingFile: "ring.raw", DialToneFile: "dialtone.raw",
			BusyToneFile: "busy.raw", ErrorToneFile: "error.raw",
		},
		Gain: config.GainConfig{Microphone: 1, Speaker: 1},
	}
}

type rig struct {
	ctrl   *Controller
	device *audiomock.Device
	client *simclient.Client
	store  *callstore.Store
	bus    *events.Bus
}

func newRig(t *testing.T, reload ReloadFunc) *rig {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	db, err := callstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := callstore.NewStore(db)

	bus := events.NewBus(nil)
	device := audiomock.New()
	port := gpiomock.New()

	mgr := callmanager.New(cfg, bus, store, device)
	dialReader := dial.New(port, cfg.Hardware.PulsePin, time.Duration(cfg.Timing.PulseTimeoutMS)*time.Millisecond, mgr.OnDigit)
	hookMonitor := hook.New(port, cfg.Hardware.HookPin, time.Duration(cfg.Timing.HookDebounceMS)*time.Millisecond, mgr.OnHookTransition)
	rng := ringer.New(port, cfg.Hardware.RingerPin, device, cfg.Audio.RingFile,
		time.Duration(cfg.Timing.RingOnMS)*time.Millisecond, time.Duration(cfg.Timing.RingOffMS)*time.Millisecond)
	client := simclient.New()
	mgr.Attach(dialReader, hookMonitor, rng, client)

	ctrl := New(Deps{
		Port: port, Device: device, Client: client,
		Dial: dialReader, Hook: hookMonitor, Ringer: rng, Manager: mgr,
		Bus: bus, DB: db, Store: store, Reload: reload,
	})

	return &rig{ctrl: ctrl, device: device, client: client, store: store, bus: bus}
}

func TestRunStartsComponentsAndShutsDownCleanlyOnContextCancel(t *testing.T) {
	r := newRig(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx) }()

	// Give Run time to reach its signal-serving loop before cancelling.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, r.client.Registered())

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.True(t, r.device.Closed())
}

func TestRunReturnsErrorWhenRegistrationFails(t *testing.T) {
	r := newRig(t, nil)
	r.client.FailNextRegistrations(1)

	err := r.ctrl.Run(context.Background())
	assert.Error(t, err)
}

func TestSIGHUPTriggersReload(t *testing.T) {
	reloaded := make(chan struct{}, 1)
	reload := func(ctx context.Context) (*config.Config, error) {
		cfg := testConfig()
		cfg.SpeedDial = map[string]string{"1": "+15557654321"}
		reloaded <- struct{}{}
		return cfg, nil
	}
	r := newRig(t, reload)
	sub, _ := r.bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload func was never invoked")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if cc, ok := ev.(events.ConfigChanged); ok && cc.Section == config.SectionSpeedDial {
				goto found
			}
		case <-deadline:
			t.Fatal("timed out waiting for ConfigChanged event")
		}
	}
found:
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
