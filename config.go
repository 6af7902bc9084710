package updater

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPIDFile = "/tmp/dnsupdater.pid"
	DefaultLogFile = "/tmp/dnsupdater.log"
)

// Config is the document written by setup and read at the start of every run.
type Config struct {
	PIDFile       string         `yaml:"pidfile"`
	Log           string         `yaml:"log"`
	Interval      time.Duration  `yaml:"interval,omitempty"`
	RetryInterval time.Duration  `yaml:"retry_interval,omitempty"`
	RateLimit     float64        `yaml:"rate_limit,omitempty"`
	Resolver      ResolverConfig `yaml:"resolver,omitempty"`
	Connections   Connections    `yaml:"connections"`
}

// ResolverConfig selects how the public address is discovered.
type ResolverConfig struct {
	Kind       string   `yaml:"kind,omitempty"` // web (default), stun, dns, upnp, interface or static
	URLs       []string `yaml:"urls,omitempty"`
	Servers    []string `yaml:"servers,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty"`
	Address    string   `yaml:"address,omitempty"`
}

// Connection is one provider credential with its domains, in configured order.
type Connection struct {
	Credential string
	Domains    []Domain
}

// Connections keeps the order of the mapping it was decoded from.
type Connections []Connection

func DefaultConfig() *Config {
	return &Config{
		PIDFile:       DefaultPIDFile,
		Log:           DefaultLogFile,
		Interval:      DefaultInterval,
		RetryInterval: DefaultRetryInterval,
	}
}

// LoadConfig reads and validates the document at path, filling in defaults for omitted fields.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the document readable by the owner only, since it holds credentials.
func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (c *Config) Validate() error {
	if c.PIDFile == "" {
		return errors.New("pidfile cannot be empty")
	}
	if c.Log == "" {
		return errors.New("log cannot be empty")
	}
	if len(c.Connections) == 0 {
		return errors.New("no connections configured")
	}
	seen := map[string]bool{}
	for i, conn := range c.Connections {
		if conn.Credential == "" {
			return fmt.Errorf("connection %d: credential cannot be empty", i)
		}
		if seen[conn.Credential] {
			return fmt.Errorf("connection %s: duplicate credential", Redact(conn.Credential))
		}
		seen[conn.Credential] = true
		for _, d := range conn.Domains {
			if d.Name == "" {
				return fmt.Errorf("connection %s: domain cannot be empty", Redact(conn.Credential))
			}
			if !strings.Contains(d.Name, ".") {
				return fmt.Errorf("connection %s: domain %q must have at least one dot", Redact(conn.Credential), d.Name)
			}
			if d.Type != TypeA {
				return fmt.Errorf("connection %s: domain %s: only A records are supported; got %q", Redact(conn.Credential), d.Name, d.Type)
			}
		}
	}
	switch c.Resolver.Kind {
	case "", "web", "stun", "dns", "upnp", "interface":
	case "static":
		if c.Resolver.Address == "" {
			return errors.New("static resolver needs an address")
		}
	default:
		return fmt.Errorf("unknown resolver kind %q", c.Resolver.Kind)
	}
	return nil
}

// Accounts builds one Account per connection, in configured order.
// Each provider returned by newProvider is wrapped with the configured rate limit.
func (c *Config) Accounts(newProvider func(credential string) (Provider, error)) ([]Account, error) {
	var accounts []Account
	for _, conn := range c.Connections {
		p, err := newProvider(conn.Credential)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", Redact(conn.Credential), err)
		}
		accounts = append(accounts, Account{
			Name:     Redact(conn.Credential),
			Provider: RateLimited(p, c.RateLimit),
			Domains:  append([]Domain(nil), conn.Domains...),
		})
	}
	return accounts, nil
}

// NewResolver builds the configured resolver.
func (c *Config) NewResolver() Resolver {
	r := c.Resolver
	switch r.Kind {
	case "stun":
		return STUNResolver(r.Servers...)
	case "dns":
		return DNSResolver(r.Servers...)
	case "upnp":
		return UPnPResolver()
	case "interface":
		return InterfaceResolver(r.Interfaces...)
	case "static":
		return StaticResolver(r.Address)
	}
	if len(r.URLs) > 0 {
		return WebResolver(r.URLs...)
	}
	return WebResolver(DefaultResolverURL)
}

// Redact shortens a credential so it can appear in logs.
func Redact(credential string) string {
	if len(credential) <= 4 {
		return "****"
	}
	return credential[:4] + "****"
}

func (cs Connections) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, conn := range cs {
		domains := &yaml.Node{Kind: yaml.MappingNode}
		for _, d := range conn.Domains {
			domains.Content = append(domains.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: d.Name},
				&yaml.Node{Kind: yaml.ScalarNode, Value: d.Type},
			)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: conn.Credential},
			&yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: "domains"},
				domains,
			}},
		)
	}
	return root, nil
}

func (cs *Connections) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: connections must be a mapping", n.Line)
	}
	var out Connections
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var body struct {
			Domains yaml.Node `yaml:"domains"`
		}
		if err := val.Decode(&body); err != nil {
			return fmt.Errorf("line %d: %w", val.Line, err)
		}
		conn := Connection{Credential: key.Value}
		if body.Domains.Kind != 0 {
			if body.Domains.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: domains must be a mapping of name to record type", body.Domains.Line)
			}
			for j := 0; j+1 < len(body.Domains.Content); j += 2 {
				conn.Domains = append(conn.Domains, Domain{
					Name: body.Domains.Content[j].Value,
					Type: strings.ToUpper(body.Domains.Content[j+1].Value),
				})
			}
		}
		out = append(out, conn)
	}
	*cs = out
	return nil
}

// VerifyPermissions rejects a configuration file that anyone but its owner can read.
func VerifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking config file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	if perms != 0o600 && perms != 0o400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
