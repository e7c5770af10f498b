// Package config loads settings from defaults, an optional YAML file,
// FLASHCARDS_ environment variables and command line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/flashcards/internal/parser"
	"github.com/conorfennell/flashcards/internal/queue"
	"github.com/conorfennell/flashcards/internal/scheduler"
)

const envPrefix = "FLASHCARDS_"

// Config is the root application configuration.
type Config struct {
	DB        string          `koanf:"db"        validate:"required"`
	ReposDir  string          `koanf:"repos_dir" validate:"required"`
	Timezone  string          `koanf:"timezone"`
	Log       LogConfig       `koanf:"log"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Undo      UndoConfig      `koanf:"undo"`
	Study     StudyConfig     `koanf:"study"`
	Import    ImportConfig    `koanf:"import"`
	HTTP      HTTPConfig      `koanf:"http"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SchedulerConfig picks and tunes the spaced-repetition algorithm.
type SchedulerConfig struct {
	Algorithm   string  `koanf:"algorithm"    validate:"oneof=fsrs simple"`
	Retention   float64 `koanf:"retention"    validate:"gt=0,lt=1"`
	MaxInterval float64 `koanf:"max_interval" validate:"gte=1"`
	Fuzz        bool    `koanf:"fuzz"`
	ShortTerm   bool    `koanf:"short_term"`
}

type UndoConfig struct {
	Depth int `koanf:"depth" validate:"min=1,max=10"`
}

type StudyConfig struct {
	// Filtered restricts the study queue to the tag selection.
	Filtered bool `koanf:"filtered"`
}

type ImportConfig struct {
	Separator string `koanf:"separator" validate:"required,len=1"`
	Quoted    bool   `koanf:"quoted"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"db":           "db",
	"repos-dir":    "repos_dir",
	"timezone":     "timezone",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"algorithm":    "scheduler.algorithm",
	"retention":    "scheduler.retention",
	"max-interval": "scheduler.max_interval",
	"fuzz":         "scheduler.fuzz",
	"short-term":   "scheduler.short_term",
	"undo-depth":   "undo.depth",
	"filtered":     "study.filtered",
	"separator":    "import.separator",
	"quoted":       "import.quoted",
	"addr":         "http.addr",
}

// sections are the nested keys whose first underscore in an environment
// variable name separates section from field.
var sections = []string{"log", "scheduler", "undo", "study", "import", "http"}

// RegisterFlags adds the global flags, whose defaults are the configuration
// defaults, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file (or FLASHCARDS_CONFIG)")
	fs.String("db", "flashcards.db", "Path to the SQLite database file")
	fs.String("repos-dir", "repos", "Directory for Git source checkouts")
	fs.String("timezone", "", "IANA time zone for due-day grouping (default: local)")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("algorithm", "fsrs", "Scheduling algorithm: fsrs or simple")
	fs.Float64("retention", 0.9, "Target recall probability for fsrs")
	fs.Float64("max-interval", 36500, "Longest interval in days for fsrs")
	fs.Bool("fuzz", false, "Randomize fsrs intervals slightly")
	fs.Bool("short-term", true, "Use fsrs minute-level learning steps")
	fs.Int("undo-depth", 10, "How many reviews can be undone (1-10)")
	fs.Bool("filtered", false, "Only study cards matching the tag selection")
	fs.String("separator", ",", "Field separator for delimited import and export")
	fs.Bool("quoted", true, "Allow double-quoted fields in delimited files")
	fs.String("addr", "127.0.0.1:8080", "Listen address for serve")
}

// Load reads configuration for a parsed flag set prepared by RegisterFlags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("config: read flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// envKey turns FLASHCARDS_SCHEDULER_MAX_INTERVAL into scheduler.max_interval.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(key, sec+"_"); ok {
			return sec + "." + rest
		}
	}
	return key
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the time zone exists.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone, defaulting to local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NewScheduler builds the configured algorithm.
func (c *Config) NewScheduler() (*scheduler.Scheduler, error) {
	algo, err := scheduler.ByName(c.Scheduler.Algorithm, scheduler.FSRSOptions{
		RequestRetention: c.Scheduler.Retention,
		MaximumInterval:  c.Scheduler.MaxInterval,
		EnableFuzz:       c.Scheduler.Fuzz,
		DisableShortTerm: !c.Scheduler.ShortTerm,
	})
	if err != nil {
		return nil, err
	}
	return scheduler.New(algo), nil
}

// ParserOptions is the configured import dialect.
func (c *Config) ParserOptions() parser.Options {
	return parser.Options{Separator: c.Import.Separator, Quoted: c.Import.Quoted}
}

// QueueMode is the configured study queue mode.
func (c *Config) QueueMode() queue.Mode {
	if c.Study.Filtered {
		return queue.Filtered
	}
	return queue.Simple
}
