// Package config loads the daemon configuration: immutable thresholds
// and infrastructure endpoints from YAML plus environment overrides,
// and the mutable per-frame sensor snapshot published to the pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	ErrSecretTooShort = errors.New("config: watermark secret must be at least 16 bytes")
	ErrBadThreshold   = errors.New("config: threshold out of range")
)

// Thresholds are immutable after load. Defaults match the field-tuned
// values; every one is overridable from the file, and the blur
// threshold also from the environment.
type Thresholds struct {
	Blur                 float64 `yaml:"blur"`
	Shake                float64 `yaml:"shake"`
	Reposition           float64 `yaml:"reposition"`
	FastReposition       float64 `yaml:"fast_reposition"`
	DirectionConsistency float64 `yaml:"direction_consistency"`
	Liveness             float64 `yaml:"liveness"`
	LivenessInterval     float64 `yaml:"liveness_check_interval"`
	LivenessActivation   float64 `yaml:"liveness_activation_time"`
	BlackoutBrightness   float64 `yaml:"blackout_brightness"`
	MajorTamperDiff      float64 `yaml:"major_tamper_diff"`
	LiveThreshold        float64 `yaml:"live_threshold"`
	ColorMatchDistance   float64 `yaml:"color_match_distance"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Blur:                 70.0,
		Shake:                6.0,
		Reposition:           10.0,
		FastReposition:       20.0,
		DirectionConsistency: 0.4,
		Liveness:             2.0,
		LivenessInterval:     3.0,
		LivenessActivation:   10.0,
		BlackoutBrightness:   25.0,
		MajorTamperDiff:      60.0,
		LiveThreshold:        0.70,
		ColorMatchDistance:   24.0,
	}
}

// Sensors is the runtime-mutable snapshot the pipeline reads at the top
// of every frame. It is a value type: the transport layer publishes a
// whole new snapshot, never field-level mutation.
type Sensors struct {
	Blur        bool   `yaml:"blur" json:"blur"`
	Shake       bool   `yaml:"shake" json:"shake"`
	Glare       bool   `yaml:"glare" json:"glare"`
	Liveness    bool   `yaml:"liveness" json:"liveness"`
	Reposition  bool   `yaml:"reposition" json:"reposition"`
	BlurFix     bool   `yaml:"blur_fix" json:"blur_fix"`
	GlareRescue bool   `yaml:"glare_rescue" json:"glare_rescue"`
	AudioAlerts bool   `yaml:"audio_alerts" json:"audio_alerts"`
	RescueMode  string `yaml:"glare_rescue_mode" json:"glare_rescue_mode"`
}

func DefaultSensors() Sensors {
	return Sensors{
		Blur: true, Shake: true, Glare: true, Liveness: true, Reposition: true,
		BlurFix: false, GlareRescue: true, AudioAlerts: false,
		RescueMode: "CLAHE",
	}
}

// Config is everything the daemon needs at startup.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds"`
	Sensors    Sensors    `yaml:"sensors"`

	CaptureSource string `yaml:"capture_source"` // device index or file/RTSP URL
	WarmupFrames  int    `yaml:"warmup_frames"`

	WatermarkSecret string `yaml:"watermark_secret"`
	JWTSecret       string `yaml:"jwt_secret"`

	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	GlareImageDir string `yaml:"glare_image_dir"`
	EventQueueCap int    `yaml:"event_queue_cap"`
}

func Default() Config {
	return Config{
		Thresholds:    DefaultThresholds(),
		Sensors:       DefaultSensors(),
		CaptureSource: "0",
		WarmupFrames:  30,
		ListenAddr:    ":8080",
		NATSSubject:   "aegis.events",
		GlareImageDir: "glare_images",
		EventQueueCap: 256,
	}
}

// Load reads the optional YAML file, overlays environment variables,
// and validates. Any failure here is fatal to the daemon (exit code 2).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	overlayEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("AEGIS_WATERMARK_SECRET"); v != "" {
		cfg.WatermarkSecret = v
	}
	if v := os.Getenv("AEGIS_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("AEGIS_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("AEGIS_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("AEGIS_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("AEGIS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AEGIS_CAPTURE_SOURCE"); v != "" {
		cfg.CaptureSource = v
	}
	if v := os.Getenv("AEGIS_BLUR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Blur = f
		}
	}
}

func (c *Config) Validate() error {
	if len(c.WatermarkSecret) < 16 {
		return ErrSecretTooShort
	}
	t := c.Thresholds
	for name, v := range map[string]float64{
		"blur":            t.Blur,
		"shake":           t.Shake,
		"reposition":      t.Reposition,
		"fast_reposition": t.FastReposition,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s = %v", ErrBadThreshold, name, v)
		}
	}
	if t.LiveThreshold <= 0 || t.LiveThreshold > 1 {
		return fmt.Errorf("%w: live_threshold = %v", ErrBadThreshold, t.LiveThreshold)
	}
	if t.DirectionConsistency <= 0 || t.DirectionConsistency > 1 {
		return fmt.Errorf("%w: direction_consistency = %v", ErrBadThreshold, t.DirectionConsistency)
	}
	if t.FastReposition <= t.Reposition {
		return fmt.Errorf("%w: fast_reposition must exceed reposition", ErrBadThreshold)
	}
	return nil
}
