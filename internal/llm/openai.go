package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/propertyhub/leadvoice/internal/reliability"
)

// Intent labels the caller's last utterance.
type Intent string

const (
	IntentAskingBudget       Intent = "asking_budget"
	IntentConfirmingInterest Intent = "confirming_interest"
	IntentObjecting          Intent = "objecting"
	IntentRequestingCallback Intent = "requesting_callback"
	IntentNotInterested      Intent = "not_interested"
	IntentReadyToVisit       Intent = "ready_to_visit"
	IntentUnclear            Intent = "unclear"
)

// NextAction is the model's vote for what the agent does next.
type NextAction string

const (
	ActionAskQuestion   NextAction = "ask_question"
	ActionRespond       NextAction = "respond"
	ActionScheduleVisit NextAction = "schedule_visit"
	ActionEndCall       NextAction = "end_call"
)

// Result is the structured reply contract every turn runs on. The model
// is instructed to emit exactly this shape as one JSON object.
type Result struct {
	Intent              Intent            `json:"intent"`
	NextAction          NextAction        `json:"next_action"`
	ResponseText        string            `json:"response_text"`
	ShouldEndCall       bool              `json:"should_end_call"`
	ExtractedData       map[string]string `json:"extracted_data"`
	LastQuestionAsked   string            `json:"last_question_asked"`
	QuestionType        string            `json:"question_type"`
	CustomerMidSentence bool              `json:"customer_mid_sentence"`
}

// SafeDefault is the reply used when the model output cannot be trusted.
func SafeDefault() Result {
	return Result{
		Intent:       IntentUnclear,
		NextAction:   ActionRespond,
		ResponseText: "Sorry, could you repeat that?",
	}
}

// Turn is one prior exchange line; Role is "user" or "assistant".
type Turn struct {
	Role string
	Text string
}

// historyLimit keeps the prompt short enough for low turn latency.
const historyLimit = 8

// Generator produces the next structured agent reply.
type Generator interface {
	Generate(ctx context.Context, userInput string, history []Turn, systemPrompt string) (Result, error)
}

// OpenAI streams chat completions and aggregates them into one Result.
type OpenAI struct {
	apiKey string
	model  string
	client *http.Client
	base   string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 10 * time.Second},
		base:   "https://api.openai.com",
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	Stream         bool          `json:"stream"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (o *OpenAI) Generate(ctx context.Context, userInput string, history []Turn, systemPrompt string) (Result, error) {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userInput})

	payload := chatRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: 0.8,
		MaxTokens:   200,
		Stream:      true,
	}
	payload.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(payload)
	if err != nil {
		return SafeDefault(), fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.base+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return SafeDefault(), fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return SafeDefault(), reliability.Transient("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("openai status %d", resp.StatusCode)
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return SafeDefault(), reliability.Transient("llm", err)
		}
		return SafeDefault(), reliability.Wrap(reliability.KindProviderContract, "llm", err)
	}

	raw, err := drainStream(resp)
	if err != nil {
		return SafeDefault(), reliability.Transient("llm", fmt.Errorf("read stream: %w", err))
	}
	return ParseResult(raw), nil
}

// drainStream aggregates SSE delta content until [DONE].
func drainStream(resp *http.Response) (string, error) {
	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			out.WriteString(choice.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// ParseResult decodes the aggregated model output, falling back to the
// safe default whenever the contract is not met.
func ParseResult(raw string) Result {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in fences despite JSON mode.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return SafeDefault()
	}
	if res.ResponseText == "" {
		return SafeDefault()
	}
	res.Intent = normalizeIntent(res.Intent)
	res.NextAction = normalizeAction(res.NextAction)
	for k, v := range res.ExtractedData {
		if strings.TrimSpace(v) == "" || strings.EqualFold(v, "null") {
			delete(res.ExtractedData, k)
		}
	}
	return res
}

func normalizeIntent(in Intent) Intent {
	switch in {
	case IntentAskingBudget, IntentConfirmingInterest, IntentObjecting,
		IntentRequestingCallback, IntentNotInterested, IntentReadyToVisit:
		return in
	default:
		return IntentUnclear
	}
}

func normalizeAction(a NextAction) NextAction {
	switch a {
	case ActionAskQuestion, ActionScheduleVisit, ActionEndCall:
		return a
	default:
		return ActionRespond
	}
}
