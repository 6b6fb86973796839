// Package secrets retrieves sensitive key material, such as the token
// signing key, from one of several read-only backends.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrProviderError  = errors.New("provider error")
)

// Provider defines the interface for secret retrieval backends.
type Provider interface {
	// Get retrieves a secret by key
	Get(ctx context.Context, key string) (string, error)

	// Name returns the provider name for logging
	Name() string
}

// ProviderType represents the type of secret provider
type ProviderType string

const (
	ProviderTypeFile  ProviderType = "file"
	ProviderTypeEnv   ProviderType = "env"
	ProviderTypeAWSSM ProviderType = "aws-sm"
	ProviderTypeVault ProviderType = "vault"
	ProviderTypeGCPSM ProviderType = "gcp-sm"
)

// Config holds configuration for the secrets provider
type Config struct {
	// Provider type
	Provider ProviderType `json:"provider" toml:"provider"`

	// File provider settings: keys resolve to files under this directory
	Dir string `json:"dir" toml:"dir"`

	// AWS Secrets Manager settings
	AWSRegion    string `json:"awsRegion" toml:"aws_region"`
	AWSPrefix    string `json:"awsPrefix" toml:"aws_prefix"`
	AWSEndpoint  string `json:"awsEndpoint" toml:"aws_endpoint"` // For LocalStack
	AWSAccessKey string `json:"awsAccessKey" toml:"aws_access_key"`
	AWSSecretKey string `json:"awsSecretKey" toml:"aws_secret_key"`

	// HashiCorp Vault settings
	VaultAddr      string `json:"vaultAddr" toml:"vault_addr"`
	VaultToken     string `json:"vaultToken" toml:"vault_token"`
	VaultPath      string `json:"vaultPath" toml:"vault_path"`
	VaultNamespace string `json:"vaultNamespace" toml:"vault_namespace"`

	// GCP Secret Manager settings
	GCPProject string `json:"gcpProject" toml:"gcp_project"`
	GCPPrefix  string `json:"gcpPrefix" toml:"gcp_prefix"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:  ProviderTypeFile,
		Dir:       "/etc/scenegrid/keys",
		AWSPrefix: "/scenegrid/",
		VaultPath: "secret/data/scenegrid",
		GCPPrefix: "scenegrid-",
	}
}

// LoadConfigFromEnv loads configuration from environment variables
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if p := os.Getenv("SCENEGRID_SECRETS_PROVIDER"); p != "" {
		cfg.Provider = ProviderType(strings.ToLower(p))
	}

	// File
	if d := os.Getenv("SCENEGRID_SECRETS_DIR"); d != "" {
		cfg.Dir = d
	}

	// AWS
	if r := os.Getenv("SCENEGRID_SECRETS_AWS_REGION"); r != "" {
		cfg.AWSRegion = r
	} else if r := os.Getenv("AWS_REGION"); r != "" {
		cfg.AWSRegion = r
	}
	if p := os.Getenv("SCENEGRID_SECRETS_AWS_PREFIX"); p != "" {
		cfg.AWSPrefix = p
	}
	if e := os.Getenv("SCENEGRID_SECRETS_AWS_ENDPOINT"); e != "" {
		cfg.AWSEndpoint = e
	}
	if k := os.Getenv("SCENEGRID_SECRETS_AWS_ACCESS_KEY"); k != "" {
		cfg.AWSAccessKey = k
	}
	if k := os.Getenv("SCENEGRID_SECRETS_AWS_SECRET_KEY"); k != "" {
		cfg.AWSSecretKey = k
	}

	// Vault
	if a := os.Getenv("SCENEGRID_SECRETS_VAULT_ADDR"); a != "" {
		cfg.VaultAddr = a
	} else if a := os.Getenv("VAULT_ADDR"); a != "" {
		cfg.VaultAddr = a
	}
	if t := os.Getenv("SCENEGRID_SECRETS_VAULT_TOKEN"); t != "" {
		cfg.VaultToken = t
	} else if t := os.Getenv("VAULT_TOKEN"); t != "" {
		cfg.VaultToken = t
	}
	if p := os.Getenv("SCENEGRID_SECRETS_VAULT_PATH"); p != "" {
		cfg.VaultPath = p
	}
	if n := os.Getenv("SCENEGRID_SECRETS_VAULT_NAMESPACE"); n != "" {
		cfg.VaultNamespace = n
	}

	// GCP
	if p := os.Getenv("SCENEGRID_SECRETS_GCP_PROJECT"); p != "" {
		cfg.GCPProject = p
	}
	if p := os.Getenv("SCENEGRID_SECRETS_GCP_PREFIX"); p != "" {
		cfg.GCPPrefix = p
	}

	return cfg
}

// NewProvider creates a provider from the given configuration.
func NewProvider(cfg *Config) (Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Provider {
	case ProviderTypeFile, "":
		return NewFileProvider(cfg)
	case ProviderTypeEnv:
		return &EnvProvider{}, nil
	case ProviderTypeAWSSM:
		return NewAWSSecretsManagerProvider(cfg)
	case ProviderTypeVault:
		return NewVaultProvider(cfg)
	case ProviderTypeGCPSM:
		return NewGCPSecretManagerProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider type %q", ErrProviderError, cfg.Provider)
	}
}

// FileProvider resolves secrets to files under a directory. This is the
// default backend and matches how deployments usually mount signing keys.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a file-backed provider rooted at cfg.Dir.
func NewFileProvider(cfg *Config) (*FileProvider, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultConfig().Dir
	}
	return &FileProvider{dir: dir}, nil
}

// Get reads the file named key under the provider directory. An absolute
// key is read as-is, which lets callers pass full key paths from config.
func (p *FileProvider) Get(_ context.Context, key string) (string, error) {
	path := key
	if !strings.HasPrefix(key, "/") {
		path = p.dir + "/" + key
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	return string(data), nil
}

func (p *FileProvider) Name() string { return "file" }

// EnvProvider reads secrets from environment variables. Keys are upper-cased
// and non-alphanumerics become underscores, so "mqtt-signing-key" resolves
// to SCENEGRID_SECRET_MQTT_SIGNING_KEY.
type EnvProvider struct{}

// Get retrieves a secret from the environment.
func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	envKey := "SCENEGRID_SECRET_" + sanitizeEnvKey(key)
	if v, ok := os.LookupEnv(envKey); ok {
		return v, nil
	}
	return "", ErrSecretNotFound
}

func (p *EnvProvider) Name() string { return "env" }

func sanitizeEnvKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
