package advisory

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
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdvisor implements Advisor against the OpenAI chat completions API.
type OpenAIAdvisor struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIAdvisor creates an advisor with a bounded request timeout. A
// timeout expiry is just another error to the caller, never fatal.
func NewOpenAIAdvisor(apiKey, model string, timeout time.Duration) *OpenAIAdvisor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAIAdvisor{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const similarityPrompt = `You compare a customer name from an invoice against a bank transaction description.
Reply with a single number between 0 and 1: the probability that the transaction pays that customer's invoice.
Consider abbreviations, legal suffixes and payment intermediaries. Reply with the number only.`

// Similarity asks the model for a second similarity estimate in [0,1].
func (a *OpenAIAdvisor) Similarity(ctx context.Context, name, description string) (float64, error) {
	content, err := a.complete(ctx, similarityPrompt,
		fmt.Sprintf("invoice customer: %q\nbank description: %q", name, description))
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	if err != nil {
		return 0, fmt.Errorf("parse similarity reply %q: %w", content, err)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("similarity reply %v out of range", score)
	}
	return score, nil
}

const decidePrompt = `You review a proposed match between an invoice and a bank movement.
Reply with JSON only: {"decision": "<category>", "rationale": "<one short sentence>"}.
Valid categories: MATCH, MATCH_DUDOSO, MATCH_MONTOS_OK_NOMBRE_BAJO, NO_MATCH.
Bulk payments, factoring and receivable assignments legitimately hide the customer name.`

// Decide asks the model to confirm or override a rule-based category.
func (a *OpenAIAdvisor) Decide(ctx context.Context, mc Context) (Decision, error) {
	payload, err := json.Marshal(mc)
	if err != nil {
		return Decision{}, fmt.Errorf("marshal context: %w", err)
	}

	content, err := a.complete(ctx, decidePrompt, string(payload))
	if err != nil {
		return Decision{}, err
	}

	// Models wrap JSON in code fences often enough to strip them.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var dec Decision
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &dec); err != nil {
		return Decision{}, fmt.Errorf("parse decision reply: %w", err)
	}
	if dec.Category == "" {
		return Decision{}, fmt.Errorf("decision reply missing category")
	}
	return dec, nil
}

func (a *OpenAIAdvisor) complete(ctx context.Context, system, user string) (string, error) {
	requestBody, err := json.Marshal(chatCompletionRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisory request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return "", fmt.Errorf("advisory API error: %s (type: %s)", errorResp.Error.Message, errorResp.Error.Type)
		}
		return "", fmt.Errorf("advisory API returned status %d", resp.StatusCode)
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("advisory response has no choices")
	}
	return response.Choices[0].Message.Content, nil
}
