package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models waispath.yml.
type Config struct {
	Portal struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"portal"`
	Scoring struct {
		CommunityWeight int `yaml:"community_weight"`
	} `yaml:"scoring"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with wp config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Portal.ID == "" {
		return fmt.Errorf("config.portal.id is required")
	}
	if c.Scoring.CommunityWeight < 0 {
		return fmt.Errorf("config.scoring.community_weight must be >= 0")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["owner"]; !ok {
			return fmt.Errorf("config.rbac.roles must include owner")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	return nil
}

// CommunityWeight returns the configured vote multiplier, defaulting when unset.
func (c *Config) CommunityWeight() int {
	if c == nil || c.Scoring.CommunityWeight == 0 {
		return 5
	}
	return c.Scoring.CommunityWeight
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "waispath.yml")
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

// Default returns the default Config struct for a portal.
func Default(portalID string) *Config {
	var cfg Config
	cfg.Portal.ID = portalID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, portalID))).Decode(&cfg)
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

const defaultTemplate = `portal:
  id: %s
  name: WAISPATH Admin Portal

scoring:
  community_weight: 5

rbac:
  roles:
    owner:
      description: "Full portal access"
      permissions:
        - report.list
        - report.read
        - report.create
        - report.triage
        - stats.read
        - audit.read
        - admin.manage
    moderator:
      description: "Reviews and triages obstacle reports"
      permissions:
        - report.list
        - report.read
        - report.create
        - report.triage
        - stats.read
    auditor:
      description: "Read-only access to reports and the audit trail"
      permissions:
        - report.list
        - report.read
        - stats.read
        - audit.read
`
