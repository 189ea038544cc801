package internal

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

type Config struct {
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	StorageBackend      string        `env:"STORAGE_BACKEND,default=badger"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH,default=./data/badger"`
	SqliteFilepath      string        `env:"SQLITE_FILEPATH,default=./data/eventmaster.db"`
	Timezone            string        `env:"TIMEZONE,default=Local"`
	DeviceID            string        `env:"DEVICE_ID"`
	ConflictPolicy      string        `env:"CONFLICT_POLICY,default=lww"`
	TombstoneGrace      time.Duration `env:"TOMBSTONE_GRACE,default=720h"`
	SyncInterval        time.Duration `env:"SYNC_INTERVAL,default=1m"`
	PurgeInterval       time.Duration `env:"PURGE_INTERVAL,default=1h"`
	RestartInterval     time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	CascadeChatOnDelete bool          `env:"CASCADE_CHAT_ON_DELETE,default=false"`
	DetectLanguage      bool          `env:"DETECT_LANGUAGE,default=true"`
	CensoredWords       string        `env:"CENSORED_WORDS"`
	CharReplacement     string        `env:"CHARACTER_REPLACEMENT,default=*"`
	SessionSecret       string        `env:"SESSION_SECRET,default=eventmaster-local"`
	SessionTTL          time.Duration `env:"SESSION_TTL,default=720h"`
	Remote              string        `env:"REMOTE,default=none"`
	RemotePath          string        `env:"REMOTE_PATH,default=./data/remote.db"`
	MongoURI            string        `env:"MONGO_URI"`
	MongoDatabase       string        `env:"MONGO_DATABASE,default=eventmaster"`
	MongoCollection     string        `env:"MONGO_COLLECTION,default=records"`
	MetricsAddr         string        `env:"METRICS_ADDR,default=:9090"`
	DiagnosticsCapacity int           `env:"DIAGNOSTICS_CAPACITY,default=20"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageBackend {
	case "badger", "sqlite":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be badger or sqlite, got %q", c.StorageBackend)
	}
	switch c.Remote {
	case "none", "memory", "file", "mongo":
	default:
		return fmt.Errorf("REMOTE must be none, memory, file or mongo, got %q", c.Remote)
	}
	if c.Remote == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required when REMOTE=mongo")
	}
	switch c.ConflictPolicy {
	case "lww", "manual":
	default:
		return fmt.Errorf("CONFLICT_POLICY must be lww or manual, got %q", c.ConflictPolicy)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMEZONE, used for "today" and upcoming/past checks.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Words splits CENSORED_WORDS on commas.
func (c Config) Words() []string {
	var words []string
	for _, w := range strings.Split(c.CensoredWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
