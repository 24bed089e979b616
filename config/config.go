package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/devadigapratham/microdose/dosing"
)

// Scanner modes
const (
	ScannerSimulated = "simulated"
	ScannerReader    = "reader"
)

// Config represents the application configuration
type Config struct {
	Node struct {
		ID string
	} `mapstructure:"node"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Raft struct {
		Enabled   bool
		Addr      string
		Dir       string
		Bootstrap bool
		Join      string
		Peers     []string
	} `mapstructure:"raft"`

	Store struct {
		Path    string
		LogName string `mapstructure:"log_name"`
	} `mapstructure:"store"`

	Backend struct {
		URL       string
		Timeout   time.Duration
		CacheSize int `mapstructure:"cache_size"`
	} `mapstructure:"backend"`

	Dosing struct {
		Tolerance float64
		ScanDelay time.Duration `mapstructure:"scan_delay"`
	} `mapstructure:"dosing"`

	Scanner struct {
		Mode   string
		Device string
	} `mapstructure:"scanner"`

	Log struct {
		Level  string
		Format string
	} `mapstructure:"log"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"id":             "node.id",
	"http-addr":      "http.addr",
	"raft":           "raft.enabled",
	"raft-addr":      "raft.addr",
	"raft-dir":       "raft.dir",
	"bootstrap":      "raft.bootstrap",
	"join":           "raft.join",
	"peers":          "raft.peers",
	"store":          "store.path",
	"backend-url":    "backend.url",
	"tolerance":      "dosing.tolerance",
	"scan-delay":     "dosing.scan_delay",
	"scanner":        "scanner.mode",
	"scanner-device": "scanner.device",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.id", "station-1")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("raft.enabled", false)
	v.SetDefault("raft.addr", "127.0.0.1:7000")
	v.SetDefault("raft.dir", "data/raft")
	v.SetDefault("raft.bootstrap", true)
	v.SetDefault("store.path", "data/microdose.db")
	v.SetDefault("store.log_name", dosing.DefaultLogName)
	v.SetDefault("backend.url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.cache_size", 256)
	v.SetDefault("dosing.tolerance", dosing.DefaultTolerance)
	v.SetDefault("dosing.scan_delay", dosing.DefaultScanDelay)
	v.SetDefault("scanner.mode", ScannerSimulated)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
}

// BindFlags defines the command line flags on fs
func BindFlags(fs *pflag.FlagSet) {
	fs.String("id", "", "Node ID")
	fs.String("http-addr", "", "HTTP API address")
	fs.Bool("raft", false, "Replicate the dosing history through raft")
	fs.String("raft-addr", "", "Raft transport address")
	fs.String("raft-dir", "", "Raft storage directory")
	fs.Bool("bootstrap", false, "Bootstrap the cluster")
	fs.String("join", "", "HTTP address of an existing node to join")
	fs.StringSlice("peers", nil, "Comma-separated list of peer raft addresses")
	fs.String("store", "", "Path of the local history database")
	fs.String("backend-url", "", "Base URL of the production REST API")
	fs.Float64("tolerance", 0, "Accepted deviation from the set point, as a fraction")
	fs.Duration("scan-delay", 0, "Resolution delay of the simulated scanner")
	fs.String("scanner", "", "Scanner mode: simulated or reader")
	fs.String("scanner-device", "", "Device or file a keyboard-wedge scanner writes to")
	fs.String("log-level", "", "Log level")
	fs.String("log-format", "", "Log format: json or console")
}

// Load reads the optional config file at path, MICRODOSE_* environment
// variables and the flags in fs, in increasing order of precedence
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MICRODOSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required values
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("HTTP address is required"))
	}
	if c.Dosing.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("tolerance must be positive, got %v", c.Dosing.Tolerance))
	}
	if c.Dosing.ScanDelay < 0 {
		errs = append(errs, errors.New("scan delay can not be negative"))
	}
	switch c.Scanner.Mode {
	case ScannerSimulated:
	case ScannerReader:
		if c.Scanner.Device == "" {
			errs = append(errs, errors.New("scanner device is required in reader mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scanner mode %q", c.Scanner.Mode))
	}
	if c.Raft.Enabled {
		if c.Node.ID == "" {
			errs = append(errs, errors.New("Node ID is required"))
		}
		if c.Raft.Addr == "" {
			errs = append(errs, errors.New("Raft address is required"))
		}
		if c.Raft.Dir == "" {
			errs = append(errs, errors.New("Raft directory is required"))
		}
	} else if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	return errors.Join(errs...)
}
