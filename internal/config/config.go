package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Paths     PathsConfig    `yaml:"paths"`
	Monitor   MonitorConfig  `yaml:"monitor"`
	Terminals TerminalConfig `yaml:"terminals"`
	Version   VersionConfig  `yaml:"version"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// PathsConfig locates the Copilot CLI's on-disk state. All of it is owned
// and written by the CLI; this server only reads.
type PathsConfig struct {
	CopilotDir      string `yaml:"copilot_dir"`
	SessionStateDir string `yaml:"session_state_dir"`
	SessionStoreDB  string `yaml:"session_store_db"`
	GroupingConfig  string `yaml:"grouping_config"`
}

type MonitorConfig struct {
	// RunningCacheTTL bounds how often the process table is rescanned.
	RunningCacheTTL time.Duration `yaml:"running_cache_ttl"`

	// EventStaleness is the age past which a pending tool's last event is
	// taken to mean the session is really waiting for input. Tunable with
	// no derivation beyond observed CLI buffering behaviour.
	EventStaleness time.Duration `yaml:"event_staleness"`

	// MatchTolerance is the max gap between a process's creation time and
	// a session.start timestamp for the correlator to accept a match.
	MatchTolerance time.Duration `yaml:"match_tolerance"`

	EventTailBuffer  int `yaml:"event_tail_buffer"`
	OutputTailBuffer int `yaml:"output_tail_buffer"`
	RecentEventCount int `yaml:"recent_event_count"`
	MaxAncestryDepth int `yaml:"max_ancestry_depth"`

	// BinaryNames are executable basenames treated as the Copilot CLI.
	BinaryNames []string `yaml:"binary_names"`
}

// TerminalConfig lists process names recognised as terminal/IDE windows when
// walking a session process's ancestry. Names match exactly (lowercased);
// substrings match fuzzily and are only consulted on Unix.
type TerminalConfig struct {
	Names      []string `yaml:"names"`
	Substrings []string `yaml:"substrings"`
}

type VersionConfig struct {
	ReleasesURL  string        `yaml:"releases_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Load reads the config file at path, applying defaults for anything unset.
// A missing file is not an error: the dashboard runs fine on defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyPathDefaults()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyPathDefaults()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaults()
	cfg.applyPathDefaults()
	return cfg
}

// defaults is Default without the path derivation, so Load can apply yaml
// overrides of copilot_dir before the dependent paths are filled in.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 5111,
			Host: "127.0.0.1",
		},
		Monitor: MonitorConfig{
			RunningCacheTTL:  5 * time.Second,
			EventStaleness:   60 * time.Second,
			MatchTolerance:   10 * time.Second,
			EventTailBuffer:  16 * 1024,
			OutputTailBuffer: 64 * 1024,
			RecentEventCount: 30,
			MaxAncestryDepth: 10,
			BinaryNames:      []string{"copilot", "copilot.exe"},
		},
		Terminals: TerminalConfig{
			Names: []string{
				"windowsterminal.exe", "wt.exe", "conemu64.exe", "conemu.exe",
				"cmder.exe", "mintty.exe", "alacritty.exe", "wezterm-gui.exe",
				"hyper.exe", "tabby.exe", "kitty.exe", "fluent-terminal.exe",
				"code.exe", "cursor.exe",
				"iterm2", "terminal", "alacritty", "wezterm", "hyper",
				"kitty", "tabby", "warp", "nova",
				"code", "cursor", "xcode",
			},
			Substrings: []string{
				"terminal", "iterm", "alacritty", "kitty", "warp",
				"hyper", "wezterm", "tmux",
			},
		},
		Version: VersionConfig{
			ReleasesURL:  "https://api.github.com/repos/copilot-dashboard/backend/releases/latest",
			CacheTTL:     30 * time.Minute,
			FetchTimeout: 5 * time.Second,
		},
	}
}

func (c *Config) applyPathDefaults() {
	if c.Paths.CopilotDir == "" {
		home, _ := os.UserHomeDir()
		c.Paths.CopilotDir = filepath.Join(home, ".copilot")
	}
	if c.Paths.SessionStateDir == "" {
		c.Paths.SessionStateDir = filepath.Join(c.Paths.CopilotDir, "session-state")
	}
	if c.Paths.SessionStoreDB == "" {
		c.Paths.SessionStoreDB = filepath.Join(c.Paths.CopilotDir, "session-store.db")
	}
	if c.Paths.GroupingConfig == "" {
		c.Paths.GroupingConfig = filepath.Join(c.Paths.CopilotDir, "dashboard-config.json")
	}
}
