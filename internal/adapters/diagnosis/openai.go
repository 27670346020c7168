package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ghalamif/NetPulse/internal/ports"
)

const SourceOpenAI = "openai"

// OpenAIConfig configures the chat-completion backed generator.
type OpenAIConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// OpenAIDiagnoser asks a chat model for a short natural-language diagnosis.
type OpenAIDiagnoser struct {
	cfg    OpenAIConfig
	client *openai.Client
}

func NewOpenAIDiagnoser(cfg OpenAIConfig) (*OpenAIDiagnoser, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIDiagnoser{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (o *OpenAIDiagnoser) Name() string { return SourceOpenAI }

func (o *OpenAIDiagnoser) Diagnose(ctx context.Context, in ports.DiagnosisInput) (ports.Diagnosis, error) {
	if in.Baseline == nil || in.Baseline.Insufficient {
		// Not enough history to say anything useful; don't spend a request on it.
		return ports.Diagnosis{}, errors.New("baseline insufficient")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a network diagnostics assistant for an edge device.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(in),
			},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ports.Diagnosis{}, fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return ports.Diagnosis{}, fmt.Errorf("AI request canceled: %w", err)
		}
		return ports.Diagnosis{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Diagnosis{}, fmt.Errorf("OpenAI API returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return ports.Diagnosis{}, fmt.Errorf("OpenAI API returned an empty diagnosis")
	}
	return ports.Diagnosis{Text: text, Source: SourceOpenAI}, nil
}

func buildPrompt(in ports.DiagnosisInput) string {
	var b strings.Builder
	b.WriteString("Based on the following network metrics, provide a brief (2-3 sentence) diagnosis of what's happening with the network.\n\n")
	b.WriteString("Network Data:\n")

	base := in.Baseline.MeanLatencyMs
	if in.Latest.HasLatency() {
		cur := in.Latest.Latency()
		fmt.Fprintf(&b, "- Current Latency: %.1fms\n", cur)
		if base > 0 {
			fmt.Fprintf(&b, "- Latency Increase: %.1f%%\n", (cur-base)/base*100)
		}
	} else {
		b.WriteString("- Current Latency: no reply\n")
	}
	fmt.Fprintf(&b, "- Baseline Latency: %.1fms\n", base)
	fmt.Fprintf(&b, "- Packet Loss: %.1f%%\n", in.Latest.PacketLossPct)
	if in.Baseline.ThroughputPairs > 0 {
		fmt.Fprintf(&b, "- Baseline Throughput: %.0f bit/s\n", in.Baseline.MeanThroughputBps)
	}

	if len(in.Anomalies) > 0 {
		b.WriteString("\nDetected anomalies:\n")
		for _, a := range in.Anomalies {
			fmt.Fprintf(&b, "- %s (%s): %s\n", a.Kind, a.Level, a.Message)
		}
	}

	b.WriteString("\nKeep it concise and actionable. If all metrics are normal, say so briefly.")
	return b.String()
}

var _ ports.Diagnoser = (*OpenAIDiagnoser)(nil)
