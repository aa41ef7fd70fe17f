package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GameConfig is the top-level game.yaml document.
type GameConfig struct {
	Version int `yaml:"version"`
	Game    struct {
		ID      string   `yaml:"id"`
		Name    string   `yaml:"name"`
		Players []string `yaml:"players"`
	} `yaml:"game"`
	Data struct {
		Spaces string `yaml:"spaces"`
		Dice   string `yaml:"dice"`
		Cards  string `yaml:"cards"`
	} `yaml:"data"`
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Network struct {
		Bind    string `yaml:"bind"`
		APIPort int    `yaml:"api_port"`
	} `yaml:"network"`
	Rules Rules `yaml:"rules"`
}

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory | file | postgres
	Dir           string `yaml:"dir"`
	KeyPrefix     string `yaml:"key_prefix"`
	SchemaVersion int    `yaml:"schema_version"`
	DebounceMS    int    `yaml:"debounce_ms"`
}

// SyncConfig configures cross-process record notifications over MQTT.
type SyncConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
}

// Rules holds the game-balance constants.
type Rules struct {
	StartSpace             string            `yaml:"start_space"`
	FinishSpace            string            `yaml:"finish_space"`
	StartingMoney          int               `yaml:"starting_money"`
	NegotiationPenaltyDays int               `yaml:"negotiation_penalty_days"`
	DebtMultiple           int               `yaml:"debt_multiple"`
	ColorBonus             float64           `yaml:"color_bonus"`
	InvestmentPhases       []string          `yaml:"investment_phases"`
	PhaseColors            map[string]string `yaml:"phase_colors"`
	DayValue               int               `yaml:"day_value"`
	RetryAttempts          int               `yaml:"retry_attempts"`
	RetryBackoffMS         int               `yaml:"retry_backoff_ms"`
	VerifyIntervalSec      int               `yaml:"verify_interval_sec"`
	DiceSeed               uint64            `yaml:"dice_seed"`
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *GameConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// APIAddr returns the listen address for the collaborator API.
func (c *GameConfig) APIAddr() string {
	bind := c.Network.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", bind, c.APIPort())
}

// Debounce returns the store notification debounce window.
func (s StorageConfig) Debounce() time.Duration {
	if s.DebounceMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// RetryBackoff returns the pause between commit attempts.
func (r Rules) RetryBackoff() time.Duration {
	if r.RetryBackoffMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(r.RetryBackoffMS) * time.Millisecond
}

// VerifyInterval returns how often the full-state verification pass runs.
func (r Rules) VerifyInterval() time.Duration {
	if r.VerifyIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.VerifyIntervalSec) * time.Second
}

// DefaultRules returns the rule set used when game.yaml leaves a field empty.
func DefaultRules() Rules {
	return Rules{
		StartSpace:             "OWNER-SCOPE-INITIATION",
		FinishSpace:            "FINISH",
		StartingMoney:          50000,
		NegotiationPenaltyDays: 1,
		DebtMultiple:           3,
		ColorBonus:             1.5,
		InvestmentPhases:       []string{"OWNER", "DESIGN", "FUNDING"},
		PhaseColors: map[string]string{
			"OWNER":        "Purple",
			"DESIGN":       "Blue",
			"FUNDING":      "Green",
			"REGULATORY":   "Orange",
			"CONSTRUCTION": "Yellow",
			"END":          "Gray",
		},
		DayValue:          1000,
		RetryAttempts:     3,
		RetryBackoffMS:    50,
		VerifyIntervalSec: 30,
	}
}

// WithDefaults fills every zero-valued rule from DefaultRules.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	if r.StartSpace == "" {
		r.StartSpace = d.StartSpace
	}
	if r.FinishSpace == "" {
		r.FinishSpace = d.FinishSpace
	}
	if r.StartingMoney == 0 {
		r.StartingMoney = d.StartingMoney
	}
	if r.NegotiationPenaltyDays == 0 {
		r.NegotiationPenaltyDays = d.NegotiationPenaltyDays
	}
	if r.DebtMultiple == 0 {
		r.DebtMultiple = d.DebtMultiple
	}
	if r.ColorBonus == 0 {
		r.ColorBonus = d.ColorBonus
	}
	if len(r.InvestmentPhases) == 0 {
		r.InvestmentPhases = d.InvestmentPhases
	}
	if len(r.PhaseColors) == 0 {
		r.PhaseColors = d.PhaseColors
	}
	if r.DayValue == 0 {
		r.DayValue = d.DayValue
	}
	if r.RetryAttempts == 0 {
		r.RetryAttempts = d.RetryAttempts
	}
	if r.RetryBackoffMS == 0 {
		r.RetryBackoffMS = d.RetryBackoffMS
	}
	if r.VerifyIntervalSec == 0 {
		r.VerifyIntervalSec = d.VerifyIntervalSec
	}
	return r
}

func (c *GameConfig) applyDefaults() {
	if c.Game.ID == "" {
		c.Game.ID = "default"
	}
	if c.Data.Spaces == "" {
		c.Data.Spaces = "data/spaces.csv"
	}
	if c.Data.Dice == "" {
		c.Data.Dice = "data/dice_outcomes.csv"
	}
	if c.Data.Cards == "" {
		c.Data.Cards = "data/cards.csv"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = ".saves"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "projectboard:" + c.Game.ID
	}
	if c.Storage.SchemaVersion == 0 {
		c.Storage.SchemaVersion = 1
	}
	if c.Sync.BrokerURL == "" {
		c.Sync.BrokerURL = "tcp://localhost:1883"
	}
	if c.Sync.TopicPrefix == "" {
		c.Sync.TopicPrefix = "projectboard/" + c.Game.ID
	}
	c.Rules = c.Rules.WithDefaults()
}

// Default returns a configuration with every default applied.
func Default() *GameConfig {
	cfg := &GameConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// LoadGameConfig reads and validates a game.yaml file.
func LoadGameConfig(path string) (*GameConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGameConfig(b)
}

// ParseGameConfig decodes a game.yaml document.
func ParseGameConfig(b []byte) (*GameConfig, error) {
	var cfg GameConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported game.yaml version: %d", cfg.Version)
	}

	switch cfg.Storage.Backend {
	case "", "memory", "file", "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}

	cfg.applyDefaults()
	return &cfg, nil
}
