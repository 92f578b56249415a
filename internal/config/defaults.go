package config

import "github.com/jackzampolin/illustra/internal/phases/illustrate"

// DefaultConcurrency mirrors the phases' own DefaultConcurrency so a
// freshly written config file documents the value actually in effect
// when no override is given.
const DefaultConcurrency = 3

// DefaultConfig returns configuration with sensible defaults: OpenAI
// for both text analysis and image generation, a local dashboard, and
// an output directory relative to the working directory.
func DefaultConfig() *Config {
	return &Config{
		APIKeys: map[string]string{
			"openai": "${OPENAI_API_KEY}",
			"gemini": "${GEMINI_API_KEY}",
		},
		Providers: map[string]Provider{
			"openai": {
				Type:         "openai",
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o",
				ImageModel:   "gpt-image-1",
			},
			"gemini": {
				Type:         "gemini",
				APIKey:       "${GEMINI_API_KEY}",
				DefaultModel: "gemini-2.0-flash",
				ImageModel:   "gemini-2.0-flash-exp",
			},
		},
		Defaults: Defaults{
			TextProvider:        "openai",
			ImageProvider:       "openai",
			OutputDir:           "./output",
			Concurrency:         DefaultConcurrency,
			StyleBootstrapCount: illustrate.DefaultStyleBootstrapCount,
		},
		Dashboard: Dashboard{
			Host: "localhost",
			Port: 3000,
		},
	}
}
