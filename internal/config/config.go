package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"warroom/internal/domain"
)

// Config models warroom.yml.
type Config struct {
	Arena struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"arena"`
	Game struct {
		CapacityPerTeam  int                   `yaml:"capacity_per_team"`
		TimeLimitMinutes int                   `yaml:"time_limit_minutes"`
		Roles            map[string]RoleConfig `yaml:"roles"`
		Targets          []TargetConfig        `yaml:"targets"`
	} `yaml:"game"`
	Adjudicator AdjudicatorConfig `yaml:"adjudicator"`
	Webhooks    []WebhookConfig   `yaml:"webhooks"`
}

type RoleConfig struct {
	Section     string `yaml:"section"`
	Description string `yaml:"description"`
}

// TargetConfig is a predefined target company for quick mission setup.
type TargetConfig struct {
	Title   string `yaml:"title"`
	Subject string `yaml:"subject"`
}

type AdjudicatorConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with wr arena config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Arena.ID == "" {
		return fmt.Errorf("config.arena.id is required")
	}
	if c.Arena.Kind != "research-arena" {
		return fmt.Errorf("config.arena.kind must be 'research-arena'")
	}
	if c.Game.CapacityPerTeam < 1 {
		return fmt.Errorf("config.game.capacity_per_team must be at least 1")
	}
	if c.Game.TimeLimitMinutes < 1 {
		return fmt.Errorf("config.game.time_limit_minutes must be at least 1")
	}
	if len(c.Game.Roles) == 0 {
		return fmt.Errorf("config.game.roles is required")
	}
	sections := map[string]string{}
	for role, rc := range c.Game.Roles {
		if !domain.ValidRole(role) {
			return fmt.Errorf("unknown role %s", role)
		}
		if rc.Section != domain.RoleSections()[role] {
			return fmt.Errorf("role %s must map to section %s", role, domain.RoleSections()[role])
		}
		if holder, ok := sections[rc.Section]; ok {
			return fmt.Errorf("section %s mapped by both %s and %s", rc.Section, holder, role)
		}
		sections[rc.Section] = role
	}
	if len(c.Game.Roles) != len(domain.Sections()) {
		return fmt.Errorf("config.game.roles must define all %d roles", len(domain.Sections()))
	}
	for i, t := range c.Game.Targets {
		if t.Title == "" || t.Subject == "" {
			return fmt.Errorf("target %d needs title and subject", i)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "warroom.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(arenaID string) string {
	return fmt.Sprintf(defaultTemplate, arenaID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an arena.
func Default(arenaID string) *Config {
	var cfg Config
	cfg.Arena.ID = arenaID
	cfg.Arena.Kind = "research-arena"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, arenaID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `arena:
  id: %s
  kind: research-arena

game:
  capacity_per_team: 4
  time_limit_minutes: 60

  roles:
    market_commander:
      section: battle1_leadership
      description: "Leads the leadership and market-position battle"
    arsenal_ranger:
      section: battle2_products
      description: "Covers products and technology arsenal"
    capital_quartermaster:
      section: battle3_funding
      description: "Covers funding rounds and financials"
    customer_analyst:
      section: battle4_customers
      description: "Covers customers and market traction"
    alliance_broker:
      section: battle5_alliances
      description: "Covers partnerships and alliances"

  targets:
    - title: "Operation Red Horizon"
      subject: "SpaceX"
    - title: "Operation Deep Current"
      subject: "Anduril Industries"
    - title: "Operation Silent Ledger"
      subject: "Stripe"

adjudicator:
  url: ""
  timeout_seconds: 60
`
