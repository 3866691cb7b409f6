// Package ollama adapts a local Ollama instance to the core's Advisor port.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptoPilot/internal/domain"
	"cryptoPilot/internal/ports"
)

const generatePath = "/api/generate"

// Client implements ports.Advisor against the Ollama /api/generate endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Ollama adapter.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates a new Ollama advisor adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Ollama client")
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama base URL and model are required", ports.ErrConfigurationError)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// generateResponse is the subset of the Ollama response we read.
type generateResponse struct {
	Response string `json:"response"`
}

// decisionWire mirrors the JSON schema the prompt instructs the model to emit.
// Price fields arrive as numbers, quoted numbers or null depending on the
// model's mood, so they decode through RawMessage.
type decisionWire struct {
	Signal       string          `json:"signal"`
	Confidence   string          `json:"confidence"`
	RiskLevel    string          `json:"risk_level"`
	Analysis     string          `json:"analysis"`
	EntryPrice   json.RawMessage `json:"entry_price"`
	StopLoss     json.RawMessage `json:"stop_loss"`
	TakeProfit   json.RawMessage `json:"take_profit"`
	PositionSize json.RawMessage `json:"position_size"`
}

// Analyze sends one analysis prompt and parses the structured reply. The
// returned turn always carries the prompt; its response is empty when the
// transport failed and raw model output when only parsing failed.
func (c *Client) Analyze(ctx context.Context, snap domain.MarketSnapshot, history []domain.ConversationTurn) (*domain.AdvisoryDecision, domain.ConversationTurn, error) {
	prompt := buildAnalysisPrompt(snap)
	fullPrompt := buildHistoryPrompt(history, prompt)
	turn := domain.ConversationTurn{Prompt: prompt}

	raw, err := c.generate(ctx, fullPrompt, 0.1)
	if err != nil {
		return nil, turn, err
	}
	turn.Response = raw

	decision, err := parseDecision(raw, snap.Symbol)
	if err != nil {
		c.logger.Warn(ctx, "advisory response was not parseable", map[string]interface{}{
			"symbol": snap.Symbol, "responseLength": len(raw),
		})
		return nil, turn, err
	}

	c.logger.Debug(ctx, "advisory decision parsed", map[string]interface{}{
		"symbol": snap.Symbol, "signal": decision.Signal,
		"confidence": decision.Confidence, "riskLevel": decision.RiskLevel,
	})
	return decision, turn, nil
}

// generate performs one non-streaming /api/generate round trip.
func (c *Client) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": temperature,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %w", ports.ErrAdvisoryUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %w", ports.ErrAdvisoryUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrAdvisoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: unexpected status %d: %s", ports.ErrAdvisoryUnavailable, resp.StatusCode, string(payload))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", fmt.Errorf("%w: decoding envelope: %w", ports.ErrAdvisoryUnavailable, err)
	}
	return gen.Response, nil
}

// parseDecision extracts the first {...} block from the model output and
// decodes it. One attempt only: anything unparseable is a malformed advisory
// and the caller falls back to its conservative default.
func parseDecision(raw, symbol string) (*domain.AdvisoryDecision, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ports.ErrMalformedAdvisory)
	}

	var wire decisionWire
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrMalformedAdvisory, err)
	}

	signal, ok := parseSignal(wire.Signal)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized signal %q", ports.ErrMalformedAdvisory, wire.Signal)
	}

	posSize := 1.0
	if v := parsePrice(wire.PositionSize); v != nil && *v > 0 {
		posSize = *v
	}

	return &domain.AdvisoryDecision{
		Symbol:          symbol,
		Signal:          signal,
		Confidence:      parseConfidence(wire.Confidence),
		RiskLevel:       parseRiskLevel(wire.RiskLevel),
		Rationale:       wire.Analysis,
		EntryPrice:      parsePrice(wire.EntryPrice),
		StopLoss:        parsePrice(wire.StopLoss),
		TakeProfit:      parsePrice(wire.TakeProfit),
		PositionSizePct: posSize,
		Timestamp:       time.Now().UTC(),
	}, nil
}

func parseSignal(s string) (domain.Signal, bool) {
	switch domain.Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case domain.SignalBuy:
		return domain.SignalBuy, true
	case domain.SignalSell:
		return domain.SignalSell, true
	case domain.SignalHold:
		return domain.SignalHold, true
	default:
		return "", false
	}
}

// parseConfidence defaults to LOW so an odd value never inflates conviction.
func parseConfidence(s string) domain.Confidence {
	switch domain.Confidence(strings.ToUpper(strings.TrimSpace(s))) {
	case domain.ConfidenceHigh:
		return domain.ConfidenceHigh
	case domain.ConfidenceMedium:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// parseRiskLevel defaults to HIGH so an odd value never understates risk.
func parseRiskLevel(s string) domain.RiskLevel {
	switch domain.RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case domain.RiskLow:
		return domain.RiskLow
	case domain.RiskMedium:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// parsePrice accepts a JSON number, a quoted number, or null/absent.
func parsePrice(raw json.RawMessage) *float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// buildHistoryPrompt prefixes retained conversation turns so the model sees
// its own prior assessments of the symbol.
func buildHistoryPrompt(history []domain.ConversationTurn, current string) string {
	var b strings.Builder
	for _, turn := range history {
		b.WriteString("User: ")
		b.WriteString(turn.Prompt)
		b.WriteString("\nAI: ")
		b.WriteString(turn.Response)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(current)
	b.WriteString("\nAI:")
	return b.String()
}

func buildAnalysisPrompt(snap domain.MarketSnapshot) string {
	return fmt.Sprintf(`You are an expert crypto trading analyst. Analyze the following market data and provide a structured response.

Market Data:
- Symbol: %s
- Current Price: $%.2f
- 24h Change: %.2f%%
- Volume: %.2f
- RSI: %.2f
- MACD: %s

Provide your analysis in this EXACT JSON format:
{
    "signal": "BUY|SELL|HOLD",
    "confidence": "HIGH|MEDIUM|LOW",
    "risk_level": "HIGH|MEDIUM|LOW",
    "analysis": "Brief analysis explaining your reasoning",
    "entry_price": "Suggested entry price or null",
    "stop_loss": "Suggested stop loss price or null",
    "take_profit": "Suggested take profit price or null",
    "position_size": "Suggested position size percentage (1-5)"
}

Respond ONLY with valid JSON, no other text.`,
		snap.Symbol, snap.Price, snap.Change24h, snap.Volume, snap.RSI, snap.MACDLabel)
}
