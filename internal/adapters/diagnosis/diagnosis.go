package diagnosis

import (
	"fmt"
	"os"
	"time"

	"github.com/gomarkdown/markdown"

	"github.com/ghalamif/NetPulse/internal/ports"
)

const (
	ModeRules  = "rules"
	ModeOpenAI = "openai"
)

// Config picks the generator at configuration time.
type Config struct {
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
}

func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeRules
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.OpenAI.Timeout <= 0 {
		c.OpenAI.Timeout = c.Timeout
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("NETPULSE_OPENAI_API_KEY")
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRules, ModeOpenAI:
		return nil
	default:
		return fmt.Errorf("unknown diagnosis mode %q", c.Mode)
	}
}

// New builds the configured generator. The openai mode always falls back to
// the rule-based generator, and degrades to it entirely when no API key is set.
func New(cfg Config, onFallback func(err error)) (ports.Diagnoser, error) {
	rules := NewRuleBased()
	if cfg.Mode != ModeOpenAI {
		return rules, nil
	}
	if cfg.OpenAI.APIKey == "" {
		return rules, nil
	}
	ai, err := NewOpenAIDiagnoser(cfg.OpenAI)
	if err != nil {
		return nil, err
	}
	return WithFallback(ai, rules, onFallback), nil
}

// RenderHTML converts a (possibly markdown) diagnosis into HTML.
func RenderHTML(text string) string {
	return string(markdown.ToHTML([]byte(text), nil, nil))
}
