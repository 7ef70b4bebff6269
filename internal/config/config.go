// Package config provides the configuration schema and loader for the
// Skybridge widget server.
package config

// LogLevel controls log verbosity for the Skybridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Skybridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Stocks  StocksConfig  `yaml:"stocks"`
	Sports  SportsConfig  `yaml:"sports"`
	LLM     LLMConfig     `yaml:"llm"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists origins permitted to reach the MCP endpoint and the
	// sync channel. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// StoreConfig selects the widget-state persistence backend. An empty
// PostgresDSN falls back to the in-memory store.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// CatalogConfig points the product tools at a storefront API.
type CatalogConfig struct {
	// Endpoint is the base URL of the product API.
	Endpoint string `yaml:"endpoint"`

	// ShopDomain is the storefront domain used to build checkout URLs
	// (e.g., "demo-shop.example").
	ShopDomain string `yaml:"shop_domain"`

	// AccessToken authenticates requests to the product API.
	AccessToken string `yaml:"access_token"`

	// Embedding enables semantic product search backed by pgvector.
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures the semantic product index. When enabled, both
// store.postgres_dsn and llm.api_key are required.
type EmbeddingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Model selects the embedding model. Empty means the default
	// (text-embedding-3-small).
	Model string `yaml:"model"`
}

// StocksConfig points the stock quote tool at a market data API.
type StocksConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// SportsConfig points the player stats tool at a sports data API.
type SportsConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// LLMConfig configures the model used for product comparison analysis and
// embeddings.
type LLMConfig struct {
	APIKey string `yaml:"api_key"`

	// Model selects the chat model for comparison prose (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}
