package summary

import (
	"fmt"

	"taskflow/internal/config"
)

// FromConfig selects the summarizer for the configured provider.
func FromConfig(cfg *config.Config) (Summarizer, error) {
	s := cfg.Summary
	switch s.Provider {
	case "", config.ProviderNone:
		return Local{}, nil
	case config.ProviderAnthropic:
		c, err := NewAnthropicCompleter(s.APIKey, s.Model, s.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewFlow(c), nil
	case config.ProviderOpenAI:
		c, err := NewOpenAICompleter(s.APIKey, s.Model, s.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewFlow(c), nil
	default:
		return nil, fmt.Errorf("unknown summary provider %q", s.Provider)
	}
}
