package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the streamplan binary. Values are resolved in
// order: defaults, config file, STREAMPLAN_* environment variables, flags.
type Config struct {
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	NodeID           string        `yaml:"node_id"`
	Description      string        `yaml:"description"`
	Peers            []string      `yaml:"peers"`
	Paths            []string      `yaml:"paths"`
	Listen           string        `yaml:"listen"`
	OutDir           string        `yaml:"out_dir"`
	EventsAddr       string        `yaml:"events_addr"`
	ChunkSize        int           `yaml:"chunk_size"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	Quiet            bool          `yaml:"quiet"`
}

func defaults() Config {
	return Config{
		LogLevel:         "info",
		LogFormat:        "text",
		NodeID:           generateNodeID(),
		Description:      "stream",
		Listen:           ":7443",
		OutDir:           ".",
		ChunkSize:        1 << 20,
		ProgressInterval: 250 * time.Millisecond,
		DialTimeout:      10 * time.Second,
	}
}

// ParseSendConfig parses the settings of the send command.
func ParseSendConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	cfg, err := parseWithFlagSet(fs, args)
	if err != nil {
		return cfg, err
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = fs.Args()
	}
	if len(cfg.Paths) == 0 {
		return cfg, errors.New("send: at least one path is required")
	}
	return cfg, nil
}

// ParseReceiveConfig parses the settings of the receive command.
func ParseReceiveConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	cfg, err := parseWithFlagSet(fs, args)
	if err != nil {
		return cfg, err
	}
	if cfg.Listen == "" {
		return cfg, errors.New("receive: -listen is required")
	}
	return cfg, nil
}

// parseWithFlagSet is an internal helper for testing with isolated flag sets.
func parseWithFlagSet(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaults()

	configPath := os.Getenv("STREAMPLAN_CONFIG")
	if p, ok := scanFlag(args, "config"); ok {
		configPath = p
	}
	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	var peers, paths []string
	fs.String("config", configPath, "YAML config file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	fs.StringVar(&cfg.NodeID, "node-id", cfg.NodeID, "identity announced to peers")
	fs.StringVar(&cfg.Description, "description", cfg.Description, "plan description (repair, bootstrap, rebuild...)")
	fs.Var((*stringSlice)(&peers), "peer", "peer address host:port (repeatable)")
	fs.Var((*stringSlice)(&paths), "path", "file or directory to stream (repeatable)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "UDP address to accept sessions on")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "directory received plans are written under")
	fs.StringVar(&cfg.EventsAddr, "events-addr", cfg.EventsAddr, "HTTP address serving the websocket event feed (empty disables it)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "read/write chunk size in bytes")
	fs.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "minimum spacing of progress reports per file")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "timeout for connecting to a peer")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "do not print progress to stdout")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if len(peers) > 0 {
		cfg.Peers = peers
	}
	if len(paths) > 0 {
		cfg.Paths = paths
	}

	if cfg.ChunkSize < 4096 {
		cfg.ChunkSize = 4096
	}
	if cfg.ChunkSize > 16<<20 {
		cfg.ChunkSize = 16 << 20
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("STREAMPLAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STREAMPLAN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("STREAMPLAN_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("STREAMPLAN_PEERS"); v != "" {
		cfg.Peers = splitList(v)
	}
	if v := os.Getenv("STREAMPLAN_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("STREAMPLAN_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("STREAMPLAN_EVENTS_ADDR"); v != "" {
		cfg.EventsAddr = v
	}
	if v := os.Getenv("STREAMPLAN_PROGRESS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STREAMPLAN_PROGRESS_INTERVAL: %w", err)
		}
		cfg.ProgressInterval = d
	}
	return nil
}

// scanFlag finds the value of -name or --name in args without parsing them.
func scanFlag(args []string, name string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		trimmed := strings.TrimLeft(arg, "-")
		if trimmed == arg || len(arg)-len(trimmed) > 2 {
			continue
		}
		if trimmed == name && i+1 < len(args) {
			return args[i+1], true
		}
		if v, ok := strings.CutPrefix(trimmed, name+"="); ok {
			return v, true
		}
	}
	return "", false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// generateNodeID generates a random 10-character hex string for node identification.
func generateNodeID() string {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "0000000000"
	}
	return hex.EncodeToString(b)
}

// stringSlice implements flag.Value for repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var _ flag.Value = (*stringSlice)(nil)
