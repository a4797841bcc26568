// Command phonecore is the rotary-dial VoIP phone core's entrypoint: it
// loads configuration, constructs the real or mock hardware/signalling
// components the ambient configuration selects, wires them into the call
// manager and process controller, and runs until a termination signal
// arrives. Grounded on the teacher's cmd/flowpbx/main.go startup sequence
// (config load, slog setup, database open, component construction, then
// handing off to a long-running server), adapted from an HTTP/SIP PBX to a
// single rotary endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotarycore/phonecore/internal/audio"
	"github.com/rotarycore/phonecore/internal/audio/audiohw"
	"github.com/rotarycore/phonecore/internal/audio/audiomock"
	"github.com/rotarycore/phonecore/internal/callmanager"
	"github.com/rotarycore/phonecore/internal/callstore"
	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/dial"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/gpio"
	"github.com/rotarycore/phonecore/internal/gpio/gpiohw"
	"github.com/rotarycore/phonecore/internal/gpio/gpiomock"
	"github.com/rotarycore/phonecore/internal/hook"
	"github.com/rotarycore/phonecore/internal/procctl"
	"github.com/rotarycore/phonecore/internal/ringer"
	"github.com/rotarycore/phonecore/internal/signalling"
	"github.com/rotarycore/phonecore/internal/signalling/simclient"
	"github.com/rotarycore/phonecore/internal/signalling/sipclient"

	"log/slog"
)

// Exit codes per the process contract: 0 normal shutdown, 1 configuration
// invalid, 2 hardware/audio unavailable, 3 signalling stack fatal.
const (
	exitOK             = 0
	exitConfigInvalid  = 1
	exitHardwareFatal  = 2
	exitSignallingFatal = 3

	gpioChipName = "gpiochip0"
)

// docConfig is the on-disk document's shape. Decoding it is this command's
// job, not internal/config's — the core package only validates and diffs
// the structured value it is handed.
type docConfig struct {
	SIP struct {
		Host              string `json:"host"`
		Port              int    `json:"port"`
		User              string `json:"user"`
		Credential        string `json:"credential"`
		RegisterIntervalS int    `json:"register_interval_s"`
	} `json:"sip"`
	Hardware struct {
		HookPin       int `json:"hook_pin"`
		PulsePin      int `json:"pulse_pin"`
		DialActivePin int `json:"dial_active_pin"`
		RingerPin     int `json:"ringer_pin"`
	} `json:"hardware"`
	Timing struct {
		PulseTimeoutMS int `json:"pulse_timeout_ms"`
		InterDigitMS   int `json:"inter_digit_ms"`
		HookDebounceMS int `json:"hook_debounce_ms"`
		RingOnMS       int `json:"ring_on_ms"`
		RingOffMS      int `json:"ring_off_ms"`
		CallAttemptMS  int `json:"call_attempt_ms"`
		RegistrationMS int `json:"registration_ms"`
	} `json:"timing"`
	SpeedDial map[string]string `json:"speed_dial"`
	AllowList []string          `json:"allow_list"`
	Audio     struct {
		RingFile      string `json:"ring_file"`
		DialToneFile  string `json:"dial_tone_file"`
		BusyToneFile  string `json:"busy_tone_file"`
		ErrorToneFile string `json:"error_tone_file"`
	} `json:"audio"`
	Gain struct {
		Microphone float64 `json:"microphone"`
		Speaker    float64 `json:"speaker"`
	} `json:"gain"`
}

func loadDocument(path string) (*config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration document: %w", err)
	}
	defer f.Close()

	var doc docConfig
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding configuration document: %w", err)
	}

	cfg := &config.Config{
		SIP: config.SIPConfig{
			Host: doc.SIP.Host, Port: doc.SIP.Port, User: doc.SIP.User,
			Credential: doc.SIP.Credential, RegisterIntervalS: doc.SIP.RegisterIntervalS,
		},
		Hardware: config.HardwareConfig{
			HookPin: doc.Hardware.HookPin, PulsePin: doc.Hardware.PulsePin,
			DialActivePin: doc.Hardware.DialActivePin, RingerPin: doc.Hardware.RingerPin,
		},
		Timing: config.TimingConfig{
			PulseTimeoutMS: doc.Timing.PulseTimeoutMS, InterDigitMS: doc.Timing.InterDigitMS,
			HookDebounceMS: doc.Timing.HookDebounceMS, RingOnMS: doc.Timing.RingOnMS,
			RingOffMS: doc.Timing.RingOffMS, CallAttemptMS: doc.Timing.CallAttemptMS,
			RegistrationMS: doc.Timing.RegistrationMS,
		},
		SpeedDial: doc.SpeedDial,
		AllowList: doc.AllowList,
		Audio: config.AudioConfig{
			RingFile: doc.Audio.RingFile, DialToneFile: doc.Audio.DialToneFile,
			BusyToneFile: doc.Audio.BusyToneFile, ErrorToneFile: doc.Audio.ErrorToneFile,
		},
		Gain: config.GainConfig{Microphone: doc.Gain.Microphone, Speaker: doc.Gain.Speaker},
	}
	return cfg, nil
}

func buildGPIO(cfg *config.Config) (gpio.Port, error) {
	if cfg.HardwareMode == "mock" {
		return gpiomock.New(), nil
	}
	port := gpiohw.New(gpioChipName)
	if err := port.ConfigureInput(cfg.Hardware.HookPin, gpio.PullUp); err != nil {
		return nil, fmt.Errorf("configuring hook pin: %w", err)
	}
	if err := port.ConfigureInput(cfg.Hardware.PulsePin, gpio.PullUp); err != nil {
		return nil, fmt.Errorf("configuring pulse pin: %w", err)
	}
	if err := port.ConfigureOutput(cfg.Hardware.RingerPin); err != nil {
		return nil, fmt.Errorf("configuring ringer pin: %w", err)
	}
	return port, nil
}

func buildAudio(cfg *config.Config) (audio.Device, error) {
	if cfg.HardwareMode == "mock" {
		return audiomock.New(), nil
	}
	return audiohw.New(), nil
}

func buildSignalling(cfg *config.Config, device audio.Device) (signalling.Client, error) {
	if cfg.SignallingMode == "mock" {
		return simclient.New(), nil
	}
	return sipclient.New(sipclient.Options{
		SIP: cfg.SIP, Device: device, LocalHost: cfg.LocalHost, LocalSIPPort: cfg.LocalSIPPort,
		RTPPortMin: cfg.RTPPortMin, RTPPortMax: cfg.RTPPortMax,
		MicGain: cfg.Gain.Microphone, SpeakerGain: cfg.Gain.Speaker,
	})
}

func run() int {
	cfg, err := config.LoadAmbient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return exitConfigInvalid
	}

	reload := func(ctx context.Context) (*config.Config, error) {
		if cfg.ConfigDocPath == "" {
			return nil, fmt.Errorf("no configuration document path configured")
		}
		return loadDocument(cfg.ConfigDocPath)
	}

	if cfg.ConfigDocPath != "" {
		doc, err := loadDocument(cfg.ConfigDocPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading configuration document: %v\n", err)
			return exitConfigInvalid
		}
		cfg.SIP, cfg.Hardware, cfg.Timing = doc.SIP, doc.Hardware, doc.Timing
		cfg.SpeedDial, cfg.AllowList, cfg.Audio, cfg.Gain = doc.SpeedDial, doc.AllowList, doc.Audio, doc.Gain
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitConfigInvalid
	}

	slog.SetDefault(slog.New(cfg.SlogHandler(os.Stdout)))
	logger := slog.Default().With("component", "main")

	db, err := callstore.Open(cfg.DataDir)
	if err != nil {
		logger.Error("opening call-log database failed", "error", err)
		return exitHardwareFatal
	}
	store := callstore.NewStore(db)

	port, err := buildGPIO(cfg)
	if err != nil {
		logger.Error("initializing gpio port failed", "error", err)
		db.Close()
		return exitHardwareFatal
	}

	device, err := buildAudio(cfg)
	if err != nil {
		logger.Error("initializing audio device failed", "error", err)
		port.Close()
		db.Close()
		return exitHardwareFatal
	}

	bus := events.NewBus(logger)
	mgr := callmanager.New(cfg, bus, store, device)

	dialReader := dial.New(port, cfg.Hardware.PulsePin,
		time.Duration(cfg.Timing.PulseTimeoutMS)*time.Millisecond, mgr.OnDigit)
	hookMonitor := hook.New(port, cfg.Hardware.HookPin,
		time.Duration(cfg.Timing.HookDebounceMS)*time.Millisecond, mgr.OnHookTransition)
	rng := ringer.New(port, cfg.Hardware.RingerPin, device, cfg.Audio.RingFile,
		time.Duration(cfg.Timing.RingOnMS)*time.Millisecond, time.Duration(cfg.Timing.RingOffMS)*time.Millisecond)

	client, err := buildSignalling(cfg, device)
	if err != nil {
		logger.Error("initializing signalling client failed", "error", err)
		device.Close()
		port.Close()
		db.Close()
		return exitSignallingFatal
	}

	mgr.Attach(dialReader, hookMonitor, rng, client)

	ctrl := procctl.New(procctl.Deps{
		Port: port, Device: device, Client: client,
		Dial: dialReader, Hook: hookMonitor, Ringer: rng, Manager: mgr,
		Bus: bus, DB: db, Store: store, Reload: reload,
	})

	if err := ctrl.Run(context.Background()); err != nil {
		logger.Error("phonecore exited with error", "error", err)
		return exitSignallingFatal
	}
	return exitOK
}

func main() {
	os.Exit(run())
}
