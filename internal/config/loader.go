package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// knownEmbeddingModels lists the embedding models Skybridge knows the vector
// dimensions for. Other names are accepted with a warning.
var knownEmbeddingModels = []string{
	"text-embedding-3-small",
	"text-embedding-3-large",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown YAML fields are rejected so typos surface at startup.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if len(cfg.Server.AllowedOrigins) == 0 {
		slog.Warn("server.allowed_origins is empty; browser clients will be rejected by CORS and the sync channel")
	}

	// Catalog
	if cfg.Catalog.Endpoint != "" && cfg.Catalog.ShopDomain == "" {
		errs = append(errs, errors.New("catalog.shop_domain is required when catalog.endpoint is set; checkout URLs cannot be built without it"))
	}
	if emb := cfg.Catalog.Embedding; emb.Enabled {
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("catalog.embedding.enabled requires store.postgres_dsn; the semantic index lives in Postgres"))
		}
		if cfg.LLM.APIKey == "" {
			errs = append(errs, errors.New("catalog.embedding.enabled requires llm.api_key"))
		}
		if emb.Model != "" && !slices.Contains(knownEmbeddingModels, emb.Model) {
			slog.Warn("unknown embedding model — dimensions default to 1536",
				"model", emb.Model,
				"known", knownEmbeddingModels,
			)
		}
	}

	if cfg.LLM.APIKey == "" && cfg.Catalog.Endpoint != "" {
		slog.Warn("llm.api_key is empty; product comparison falls back to tabular output")
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; widget state is kept in memory and lost on restart")
	}

	return errors.Join(errs...)
}
