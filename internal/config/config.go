// Package config defines the validated configuration value consumed by the
// phone-call core. Parsing and persisting the on-disk configuration document
// is the surrounding application's job — this package only validates and
// diffs the structured value it is handed.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Section names used in ConfigChanged events and ApplySection calls.
const (
	SectionSIP       = "sip"
	SectionHardware  = "hardware"
	SectionTiming    = "timing"
	SectionSpeedDial = "speed_dial"
	SectionAllowlist = "allowlist"
	SectionAudio     = "audio"
	SectionGain      = "gain"
)

// SIPConfig describes the signalling peer this endpoint registers with.
type SIPConfig struct {
	Host               string
	Port               int
	User               string
	Credential         string // never logged, never included in events
	RegisterIntervalS  int    // 0 disables periodic re-registration
}

// HardwareConfig is the BCM GPIO pin assignment for the rotary hardware.
type HardwareConfig struct {
	HookPin       int
	PulsePin      int
	DialActivePin int // 0 means "not wired"
	RingerPin     int
}

// TimingConfig holds every debounce/timeout duration the core depends on, in
// milliseconds, matching the units a config document would carry.
type TimingConfig struct {
	PulseTimeoutMS    int
	InterDigitMS      int
	HookDebounceMS    int
	RingOnMS          int
	RingOffMS         int
	CallAttemptMS     int
	RegistrationMS    int
}

// AudioConfig names the waveform files played by the ringer and the call
// manager's policy/error tones.
type AudioConfig struct {
	RingFile     string
	DialToneFile string
	BusyToneFile string
	ErrorToneFile string
}

// GainConfig carries the software gain multipliers applied before mixing
// into the signalling stack. Both must lie in [0.0, 2.0].
type GainConfig struct {
	Microphone float64
	Speaker    float64
}

// Config is the read-only, validated configuration value the process
// controller hands to every other component at construction. Any domain
// section may be replaced at runtime via ApplySection, which is the only
// mutation path.
type Config struct {
	DataDir   string
	LogLevel  string
	LogFormat string

	// ConfigDocPath names the on-disk document the surrounding application
	// (cmd/phonecore) decodes into the domain sections below. Reading and
	// decoding it is the application's job, not this package's — see
	// LoadAmbient's doc comment.
	ConfigDocPath string

	// HardwareMode and SignallingMode select between the real and mock
	// implementations of the GPIO/audio and signalling abstractions,
	// matching the "two concrete variants selected at construction"
	// guidance: "real" or "mock".
	HardwareMode   string
	SignallingMode string

	// LocalHost/LocalSIPPort/RTPPortMin/RTPPortMax are this endpoint's own
	// network binding, an ambient deployment concern distinct from the SIP
	// peer it registers with.
	LocalHost    string
	LocalSIPPort int
	RTPPortMin   int
	RTPPortMax   int

	SIP       SIPConfig
	Hardware  HardwareConfig
	Timing    TimingConfig
	SpeedDial map[string]string
	AllowList []string
	Audio     AudioConfig
	Gain      GainConfig
}

// defaults for the ambient bootstrap fields. The domain sections have no
// defaults here: they are meaningless without a real rotary phone and a
// real SIP peer, so Validate rejects a zero-value Config outright.
const (
	defaultDataDir   = "./data"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	defaultHardwareMode   = "mock"
	defaultSignallingMode = "mock"

	defaultLocalHost    = "0.0.0.0"
	defaultLocalSIPPort = 5060
	defaultRTPPortMin   = 16384
	defaultRTPPortMax   = 32768
)

// envPrefix is the prefix for the ambient bootstrap environment variables.
const envPrefix = "ROTARYCORE_"

// LoadAmbient parses only the ambient bootstrap fields (data directory,
// logging, hardware/signalling mode selection, network binding, and the
// domain configuration document's path) from CLI flags and environment
// variables; precedence is CLI flags > env vars > defaults. The domain
// configuration itself (SIP peer, hardware pins, timing, speed-dial,
// allow-list, audio, gain) is not a flag/env concern — it is decoded by the
// surrounding application from the document at ConfigDocPath and merged in
// before Validate is called, this package never reads that document.
func LoadAmbient() (*Config, error) {
	cfg := &Config{
		DataDir: defaultDataDir, LogLevel: defaultLogLevel, LogFormat: defaultLogFormat,
		HardwareMode: defaultHardwareMode, SignallingMode: defaultSignallingMode,
		LocalHost: defaultLocalHost, LocalSIPPort: defaultLocalSIPPort,
		RTPPortMin: defaultRTPPortMin, RTPPortMax: defaultRTPPortMax,
	}

	fs := flag.NewFlagSet("rotarycore", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the call-log database")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.ConfigDocPath, "config", "", "path to the domain configuration document")
	fs.StringVar(&cfg.HardwareMode, "hardware-mode", defaultHardwareMode, "gpio/audio implementation (real, mock)")
	fs.StringVar(&cfg.SignallingMode, "signalling-mode", defaultSignallingMode, "signalling client implementation (real, mock)")
	fs.StringVar(&cfg.LocalHost, "local-host", defaultLocalHost, "local host this endpoint binds its SIP/RTP sockets to")
	fs.IntVar(&cfg.LocalSIPPort, "local-sip-port", defaultLocalSIPPort, "local UDP port the SIP stack listens on")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "lower bound of the RTP port range")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "upper bound of the RTP port range")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyAmbientEnvOverrides(fs, cfg)

	if err := cfg.validateAmbient(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyAmbientEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	strEnv := map[string]*string{
		"data-dir":         &cfg.DataDir,
		"log-level":        &cfg.LogLevel,
		"log-format":       &cfg.LogFormat,
		"config":           &cfg.ConfigDocPath,
		"hardware-mode":    &cfg.HardwareMode,
		"signalling-mode":  &cfg.SignallingMode,
		"local-host":       &cfg.LocalHost,
	}
	for flagName, dst := range strEnv {
		if set[flagName] {
			continue
		}
		envVar := envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
		if val, ok := os.LookupEnv(envVar); ok && val != "" {
			*dst = val
		}
	}

	intEnv := map[string]*int{
		"local-sip-port": &cfg.LocalSIPPort,
		"rtp-port-min":   &cfg.RTPPortMin,
		"rtp-port-max":   &cfg.RTPPortMax,
	}
	for flagName, dst := range intEnv {
		if set[flagName] {
			continue
		}
		envVar := envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		*dst = n
	}
}

func (c *Config) validateAmbient() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	validModes := map[string]bool{"real": true, "mock": true}
	if !validModes[strings.ToLower(c.HardwareMode)] {
		return fmt.Errorf("hardware-mode must be one of real, mock; got %q", c.HardwareMode)
	}
	c.HardwareMode = strings.ToLower(c.HardwareMode)
	if !validModes[strings.ToLower(c.SignallingMode)] {
		return fmt.Errorf("signalling-mode must be one of real, mock; got %q", c.SignallingMode)
	}
	c.SignallingMode = strings.ToLower(c.SignallingMode)

	if c.LocalSIPPort < 1 || c.LocalSIPPort > 65535 {
		return fmt.Errorf("local-sip-port must be between 1 and 65535, got %d", c.LocalSIPPort)
	}
	if c.RTPPortMin < 1 || c.RTPPortMax > 65535 || c.RTPPortMin > c.RTPPortMax {
		return fmt.Errorf("rtp-port-min/rtp-port-max must describe a valid port range, got %d-%d", c.RTPPortMin, c.RTPPortMax)
	}
	return nil
}

// Validate checks every domain section for internal consistency and
// returns the first violated rule. It is called once at startup on the full
// Config, and again by each ApplySection call on the whole candidate value.
// The ambient bootstrap fields are checked by LoadAmbient, not here.
func (c *Config) Validate() error {
	if c.SIP.Host == "" {
		return fmt.Errorf("sip.host must not be empty")
	}
	if c.SIP.Port < 1 || c.SIP.Port > 65535 {
		return fmt.Errorf("sip.port must be between 1 and 65535, got %d", c.SIP.Port)
	}
	if c.SIP.User == "" {
		return fmt.Errorf("sip.user must not be empty")
	}
	if c.Hardware.HookPin == c.Hardware.PulsePin {
		return fmt.Errorf("hardware.hook_pin and hardware.pulse_pin must differ")
	}
	if c.Hardware.RingerPin == c.Hardware.HookPin || c.Hardware.RingerPin == c.Hardware.PulsePin {
		return fmt.Errorf("hardware.ringer_pin must not alias an input pin")
	}
	if c.Timing.PulseTimeoutMS <= 0 {
		return fmt.Errorf("timing.pulse_timeout_ms must be positive, got %d", c.Timing.PulseTimeoutMS)
	}
	if c.Timing.InterDigitMS <= 0 {
		return fmt.Errorf("timing.inter_digit_ms must be positive, got %d", c.Timing.InterDigitMS)
	}
	if c.Timing.HookDebounceMS <= 0 {
		return fmt.Errorf("timing.hook_debounce_ms must be positive, got %d", c.Timing.HookDebounceMS)
	}
	if c.Timing.RingOnMS <= 0 || c.Timing.RingOffMS <= 0 {
		return fmt.Errorf("timing.ring_on_ms and timing.ring_off_ms must be positive")
	}
	if c.Timing.CallAttemptMS <= 0 {
		return fmt.Errorf("timing.call_attempt_ms must be positive, got %d", c.Timing.CallAttemptMS)
	}
	for code, dest := range c.SpeedDial {
		if len(code) == 0 || len(code) > 2 {
			return fmt.Errorf("speed_dial code %q must be 1-2 digits", code)
		}
		if dest == "" {
			return fmt.Errorf("speed_dial code %q maps to an empty destination", code)
		}
	}
	if c.Gain.Microphone < 0.0 || c.Gain.Microphone > 2.0 {
		return fmt.Errorf("gain.microphone must be in [0.0, 2.0], got %f", c.Gain.Microphone)
	}
	if c.Gain.Speaker < 0.0 || c.Gain.Speaker > 2.0 {
		return fmt.Errorf("gain.speaker must be in [0.0, 2.0], got %f", c.Gain.Speaker)
	}
	return nil
}

// Clone returns a deep copy, used so ApplySection can diff the new value
// against an untouched snapshot of the old one.
func (c *Config) Clone() *Config {
	cp := *c
	cp.SpeedDial = make(map[string]string, len(c.SpeedDial))
	for k, v := range c.SpeedDial {
		cp.SpeedDial[k] = v
	}
	cp.AllowList = append([]string(nil), c.AllowList...)
	return &cp
}

// ApplySection runs mutate against a clone of c, validates the result, and
// only then commits it into c. It reports whether the named section's value
// actually changed, so a caller can suppress a redundant ConfigChanged event
// for a re-read that produced an identical document (P8).
func (c *Config) ApplySection(section string, mutate func(*Config)) (bool, error) {
	before := c.Clone()
	candidate := c.Clone()
	mutate(candidate)
	if err := candidate.Validate(); err != nil {
		return false, err
	}
	*c = *candidate
	return !sectionEqual(section, before, c), nil
}

func sectionEqual(section string, a, b *Config) bool {
	switch section {
	case SectionSIP:
		return a.SIP == b.SIP
	case SectionHardware:
		return a.Hardware == b.Hardware
	case SectionTiming:
		return a.Timing == b.Timing
	case SectionSpeedDial:
		return reflect.DeepEqual(a.SpeedDial, b.SpeedDial)
	case SectionAllowlist:
		return reflect.DeepEqual(a.AllowList, b.AllowList)
	case SectionAudio:
		return a.Audio == b.Audio
	case SectionGain:
		return a.Gain == b.Gain
	default:
		return true
	}
}

// PermitsDestination reports whether dest is reachable under the allow-list:
// an exact match, or the literal "*" wildcard entry.
func (c *Config) PermitsDestination(dest string) bool {
	for _, entry := range c.AllowList {
		if entry == "*" || entry == dest {
			return true
		}
	}
	return false
}

// SlogHandler returns a slog.Handler configured with the configured format
// and level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

