package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

// Config models aft.yml.
type Config struct {
	Organization struct {
		ID string `yaml:"id"`
	} `yaml:"organization"`
	Numbering struct {
		Prefix string `yaml:"prefix"`
	} `yaml:"numbering"`
	Transfers struct {
		DualSignatureDefault bool   `yaml:"dual_signature_default"`
		SecondarySignerType  string `yaml:"secondary_signer_type"`
	} `yaml:"transfers"`
	Actors []ActorSeed `yaml:"actors"`
}

// ActorSeed pre-provisions an actor and its role set at startup.
type ActorSeed struct {
	ID          string   `yaml:"id"`
	PrimaryRole string   `yaml:"primary_role"`
	Roles       []string `yaml:"roles"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with aft init", path)
		}
		return nil, err
	}
	return FromYAML(data)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Organization.ID == "" {
		return fmt.Errorf("config.organization.id is required")
	}
	if c.Numbering.Prefix == "" {
		return fmt.Errorf("config.numbering.prefix is required")
	}
	if c.Transfers.SecondarySignerType != "" {
		switch c.Transfers.SecondarySignerType {
		case "dta", "sme":
		default:
			return fmt.Errorf("config.transfers.secondary_signer_type must be dta or sme")
		}
	}
	for i, seed := range c.Actors {
		if seed.ID == "" {
			return fmt.Errorf("config.actors[%d].id is required", i)
		}
		if _, err := domain.ParseRole(seed.PrimaryRole); err != nil {
			return fmt.Errorf("config.actors[%d]: %w", i, err)
		}
		for _, role := range seed.Roles {
			if _, err := domain.ParseRole(role); err != nil {
				return fmt.Errorf("config.actors[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "aft.yml")
}

// Default returns the default Config struct for an organization.
func Default(orgID string) *Config {
	cfg, _ := FromYAML([]byte(GenerateDefault(orgID)))
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
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

const defaultTemplate = `organization:
  id: %s

numbering:
  prefix: AFT

transfers:
  dual_signature_default: true
  secondary_signer_type: sme

actors: []
`
