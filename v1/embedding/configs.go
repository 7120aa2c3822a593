package embedding

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

const (
	defaultAuthHeader   = "Authorization"
	defaultAuthScheme   = "Bearer"
	defaultHTTPTimeoutS = 30

	// authSchemeNone sends the token without a scheme prefix.
	authSchemeNone = "none"
)

// Config describes one hosted embedding endpoint and how to authenticate to it.
type Config struct {
	// Endpoint is the URL requests are posted to. With the openai provider it
	// is the API base URL instead (the SDK appends /embeddings).
	Endpoint string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" validate:"required,url"`

	// Provider is "inference" (default) or "openai".
	Provider ProviderKind `yaml:"provider" env:"EMBEDDING_PROVIDER" validate:"oneof=inference openai"`

	// Format is the request body shape for the inference provider.
	Format Format `yaml:"format" env:"EMBEDDING_FORMAT" validate:"oneof=openai tei instances"`

	Model      string `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS" validate:"gte=0"`

	// Normalize and Truncate are only sent with the tei format. A nil
	// Normalize leaves the server default in place.
	Normalize *bool `yaml:"normalize" env:"EMBEDDING_NORMALIZE"`
	Truncate  bool  `yaml:"truncate" env:"EMBEDDING_TRUNCATE"`

	// Token wins over TokenFile.
	Token     string `yaml:"token" env:"EMBEDDING_API_TOKEN"`
	TokenFile string `yaml:"token_file" env:"EMBEDDING_API_TOKEN_FILE"`

	// AuthHeader carries "<AuthScheme> <token>". Set AuthScheme to "none"
	// to send the bare token, e.g. for "api-key" style headers.
	AuthHeader string `yaml:"auth_header" env:"EMBEDDING_AUTH_HEADER"`
	AuthScheme string `yaml:"auth_scheme" env:"EMBEDDING_AUTH_SCHEME"`

	// ExtraHeaders are sent with every request ("k:v,k2:v2" in the environment).
	ExtraHeaders map[string]string `yaml:"extra_headers" env:"EMBEDDING_EXTRA_HEADERS"`

	// QueryPrefix and DocumentPrefix are prepended to texts for models
	// trained with asymmetric instructions ("query: ", "passage: ").
	QueryPrefix    string `yaml:"query_prefix" env:"EMBEDDING_QUERY_PREFIX"`
	DocumentPrefix string `yaml:"document_prefix" env:"EMBEDDING_DOCUMENT_PREFIX"`

	// HTTPTimeoutS bounds one request. 0 selects the 30 second default and
	// -1 disables the client timeout, leaving only the context deadline.
	HTTPTimeoutS int `yaml:"http_timeout_seconds" env:"EMBEDDING_HTTP_TIMEOUT_SECONDS" validate:"gte=-1"`

	// Logger is an optional logger from the logger package.
	Logger Logger `yaml:"-"`

	// Tracer opens the request spans and injects trace headers. When nil the
	// global OpenTelemetry provider is used.
	Tracer *tracer.Tracer `yaml:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig reads the configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("embedding: parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadConfig reads a YAML file and then applies environment overrides.
// An empty path behaves like NewConfig.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return NewConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embedding: read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("embedding: parse config %s: %w", path, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("embedding: parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderInference
	}
	if c.Format == "" {
		c.Format = FormatOpenAI
	}
	if c.AuthHeader == "" {
		c.AuthHeader = defaultAuthHeader
	}
	if c.AuthScheme == "" {
		c.AuthScheme = defaultAuthScheme
	}
	if c.HTTPTimeoutS == 0 {
		c.HTTPTimeoutS = defaultHTTPTimeoutS
	}
}

// httpTimeout converts HTTPTimeoutS for http.Client, where zero means no limit.
func (c *Config) httpTimeout() time.Duration {
	if c.HTTPTimeoutS < 0 {
		return 0
	}
	return time.Duration(c.HTTPTimeoutS) * time.Second
}

// Validate checks the configuration. Unset optional fields are defaulted
// first, so a hand-built Config only needs an Endpoint.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	c.applyDefaults()

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
