package config

// Config holds illustra's on-disk configuration.
// Stored at: ./config.yaml or ~/.illustra/config.yaml.
type Config struct {
	APIKeys   map[string]string   `mapstructure:"api_keys" yaml:"api_keys"`
	Providers map[string]Provider `mapstructure:"providers" yaml:"providers"`
	Defaults  Defaults            `mapstructure:"defaults" yaml:"defaults"`
	Dashboard Dashboard           `mapstructure:"dashboard" yaml:"dashboard"`
}

// Provider describes one named text/image backend entry.
type Provider struct {
	// Type selects the backend: "openai" (OpenAI-compatible chat+image
	// API) or "gemini" (native Gemini translation layer). Empty
	// defaults to "openai".
	Type string `mapstructure:"type" yaml:"type"`
	// APIKey may be a literal value or an "${ENV_VAR}" reference,
	// resolved by ResolveEnvVars before use.
	APIKey       string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
	ImageModel   string `mapstructure:"image_model" yaml:"image_model,omitempty"`
}

// Defaults holds pipeline-wide tunables a run falls back to when the
// CLI doesn't override them.
type Defaults struct {
	TextProvider        string `mapstructure:"text_provider" yaml:"text_provider"`
	ImageProvider       string `mapstructure:"image_provider" yaml:"image_provider"`
	OutputDir           string `mapstructure:"output_dir" yaml:"output_dir"`
	Concurrency         int    `mapstructure:"concurrency" yaml:"concurrency"`
	StyleBootstrapCount int    `mapstructure:"style_bootstrap_count" yaml:"style_bootstrap_count"`
}

// Dashboard holds the live-progress server's default bind settings.
type Dashboard struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}
