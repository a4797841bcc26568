package config

import (
	"os"
	"testing"
)

func validConfig() *Config {
	return &Config{
		DataDir:   defaultDataDir,
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
		SIP: SIPConfig{
			Host: "sip.example.com",
			Port: 5060,
			User: "rotary1",
		},
		Hardware: HardwareConfig{
			HookPin:   17,
			PulsePin:  27,
			RingerPin: 22,
		},
		Timing: TimingConfig{
			PulseTimeoutMS: 300,
			InterDigitMS:   4000,
			HookDebounceMS: 50,
			RingOnMS:       2000,
			RingOffMS:      4000,
			CallAttemptMS:  30000,
		},
		SpeedDial: map[string]string{"1": "+15551234567"},
		AllowList: []string{"+15551234567"},
		Gain:      GainConfig{Microphone: 1.0, Speaker: 1.0},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsAliasedPins(t *testing.T) {
	cfg := validConfig()
	cfg.Hardware.RingerPin = cfg.Hardware.HookPin
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for aliased pins")
	}
}

func TestValidateRejectsOutOfRangeGain(t *testing.T) {
	cfg := validConfig()
	cfg.Gain.Speaker = 2.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range gain")
	}
}

func TestValidateRejectsLongSpeedDialCode(t *testing.T) {
	cfg := validConfig()
	cfg.SpeedDial["123"] = "+15550000000"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for 3-digit speed-dial code")
	}
}

func TestPermitsDestination(t *testing.T) {
	cfg := validConfig()
	if !cfg.PermitsDestination("+15551234567") {
		t.Error("expected allow-listed destination to be permitted")
	}
	if cfg.PermitsDestination("+19998887777") {
		t.Error("expected non-listed destination to be rejected")
	}

	cfg.AllowList = []string{"*"}
	if !cfg.PermitsDestination("+19998887777") {
		t.Error("expected wildcard allow-list to permit any destination")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := validConfig()
	clone := cfg.Clone()
	clone.SpeedDial["2"] = "+15559999999"
	clone.AllowList = append(clone.AllowList, "*")

	if _, ok := cfg.SpeedDial["2"]; ok {
		t.Error("mutating clone's speed dial affected the original")
	}
	if len(cfg.AllowList) != 1 {
		t.Error("mutating clone's allow-list affected the original")
	}
}

func TestLoadAmbientDefaults(t *testing.T) {
	for _, env := range []string{"ROTARYCORE_DATA_DIR", "ROTARYCORE_LOG_LEVEL", "ROTARYCORE_LOG_FORMAT"} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	os.Args = []string{"rotarycore"}

	cfg, err := LoadAmbient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}
