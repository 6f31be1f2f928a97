// Package config loads and validates the feed generator's YAML
// configuration file.
package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes one published feed generator record.
type FeedConfig struct {
	RecordName  string `yaml:"record_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	AvatarPath  string `yaml:"avatar_path,omitempty"`
	URI         string `yaml:"uri"`
}

// Config holds the full configuration loaded from the YAML file at
// startup. Changes require a restart.
type Config struct {
	// Handle is the bot account's AT Protocol handle. Only the
	// publishfeed admin CLI logs in with it; the serving and ingestion
	// processes don't read it.
	Handle string `yaml:"handle"`

	// Password is the bot account's app password. Only the publishfeed
	// admin CLI needs this; the serving and ingestion processes don't.
	Password string `yaml:"password"`

	// Hostname is this service's public hostname, used to build the
	// did:web service DID and the well-known DID document.
	Hostname string `yaml:"hostname"`

	// DBHost is the PostgreSQL host:port.
	DBHost string `yaml:"db_host"`

	// DBName is the PostgreSQL database name.
	DBName string `yaml:"db_name"`

	// DBUser is the PostgreSQL username.
	DBUser string `yaml:"db_user"`

	// DBPassword is the PostgreSQL password.
	DBPassword string `yaml:"db_password"`

	// ListenAddr is the HTTP listen address for the serving process.
	ListenAddr string `yaml:"listen_addr"`

	// FirehoseURL is the upstream subscribeRepos WebSocket endpoint.
	FirehoseURL string `yaml:"firehose_url"`

	// PLCDirectory is the DID PLC directory base URL, used to resolve
	// did:plc documents for follow priming and auth key resolution.
	PLCDirectory string `yaml:"plc_directory,omitempty"`

	// Feeds maps a short internal key to a configured feed's metadata.
	Feeds map[string]FeedConfig `yaml:"feeds"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5000"
	}
	if cfg.FirehoseURL == "" {
		cfg.FirehoseURL = "wss://bsky.network/xrpc/com.atproto.sync.subscribeRepos"
	}
	if cfg.PLCDirectory == "" {
		cfg.PLCDirectory = "https://plc.directory"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks that all fields required for the serving/ingestion
// processes are present. Handle/Password are only required by the
// publishfeed admin CLI and are checked separately there.
func (c *Config) validate() error {
	switch {
	case c.Hostname == "":
		return fmt.Errorf("config: hostname is required")
	case c.DBHost == "":
		return fmt.Errorf("config: db_host is required")
	case c.DBName == "":
		return fmt.Errorf("config: db_name is required")
	case c.DBUser == "":
		return fmt.Errorf("config: db_user is required")
	case c.DBPassword == "":
		return fmt.Errorf("config: db_password is required")
	}
	return nil
}

// ServiceDID is this feed generator's did:web identifier.
func (c *Config) ServiceDID() string {
	return "did:web:" + c.Hostname
}

// ConnString builds a PostgreSQL connection URI from the config fields.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(c.DBPassword),
		c.DBHost,
		url.QueryEscape(c.DBName),
	)
}

// ValidateAdmin additionally requires the bot credentials used by the
// publishfeed admin CLI.
func (c *Config) ValidateAdmin() error {
	if c.Handle == "" {
		return fmt.Errorf("config: handle is required for publishfeed")
	}
	if c.Password == "" {
		return fmt.Errorf("config: password is required for publishfeed")
	}
	return nil
}
