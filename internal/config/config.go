// Package config loads and validates proctor settings from flags, PROCTOR_* env vars and an optional proctor.yaml using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything a monitoring session needs at startup.
type Config struct {
	// Camera selects the capture device ("0" is the first device).
	Camera string `mapstructure:"camera"`
	// Enroll lists reference images; each contributes one enrolled identity, in order.
	Enroll []string `mapstructure:"enroll"`
	// FromDB loads enrolled identities from the registry in addition to Enroll images.
	FromDB bool   `mapstructure:"from-db"`
	DBURL  string `mapstructure:"db"`

	ModelCfg      string        `mapstructure:"cfg"`
	ModelWeights  string        `mapstructure:"weights"`
	ClassNames    string        `mapstructure:"names"`
	WorkerScript  string        `mapstructure:"worker-script"`
	WorkerTimeout time.Duration `mapstructure:"worker-timeout"`

	// Tolerance is the maximum embedding distance accepted as a match.
	Tolerance float64 `mapstructure:"tolerance"`
	// Metric is "euclidean" (face_recognition's metric) or "cosine".
	Metric     string   `mapstructure:"metric"`
	Confidence float64  `mapstructure:"confidence"`
	Watch      []string `mapstructure:"watch"`

	// PhoneDelay is how long the disqualification frame stays on screen before the screenshot.
	PhoneDelay        time.Duration `mapstructure:"phone-delay"`
	ReportPath        string        `mapstructure:"report"`
	ScreenshotPath    string        `mapstructure:"screenshot"`
	TerminateOnNoUser bool          `mapstructure:"terminate-on-no-user"`

	NoDisplay  bool   `mapstructure:"no-display"`
	Fullscreen bool   `mapstructure:"fullscreen"`
	NoProgress bool   `mapstructure:"no-progress"`
	LogLevel   string `mapstructure:"log-level"`
}

// Defaults mirror the original deployment: YOLOv3 under ./models, a phone watch-list and a 5s evidence pause.
var defaults = map[string]interface{}{
	"camera":               "0",
	"cfg":                  "models/yolov3.cfg",
	"weights":              "models/yolov3.weights",
	"names":                "models/coco.names",
	"worker-script":        "python/worker.py",
	"worker-timeout":       "30s",
	"tolerance":            0.6,
	"metric":               "euclidean",
	"confidence":           0.5,
	"watch":                []string{"cell phone"},
	"phone-delay":          "5s",
	"report":               "report.txt",
	"screenshot":           "screenshot.png",
	"terminate-on-no-user": false,
	"fullscreen":           true,
	"log-level":            "info",
}

// Default returns the value Load would use for key when nothing overrides it.
func Default(key string) interface{} {
	return defaults[key]
}

// Load merges proctor.yaml (if present), PROCTOR_* env vars and the given flags (which win).
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigName("proctor")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading proctor.yaml: %w", err)
		}
	}

	v.SetEnvPrefix("PROCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	for _, k := range []string{"enroll", "from-db", "db", "no-display", "no-progress"} {
		v.SetDefault(k, nil)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make the session meaningless.
func (c *Config) Validate() error {
	if c.Tolerance <= 0 || c.Tolerance > 1.0 {
		return fmt.Errorf("config: tolerance must be between 0.0 and 1.0, got %f", c.Tolerance)
	}
	if c.Confidence <= 0 || c.Confidence > 1.0 {
		return fmt.Errorf("config: confidence must be between 0.0 and 1.0, got %f", c.Confidence)
	}
	if c.Metric != "euclidean" && c.Metric != "cosine" {
		return fmt.Errorf("config: metric must be 'euclidean' or 'cosine', got %q", c.Metric)
	}
	if c.PhoneDelay < 0 {
		return errors.New("config: phone-delay must not be negative")
	}
	if len(c.Watch) == 0 {
		return errors.New("config: watch-list must name at least one class")
	}
	if c.ReportPath == "" {
		return errors.New("config: report path must be set")
	}
	return nil
}
