package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mbrandao/opchat/internal/models"
)

// AnthropicExtractor implements Extractor against the Anthropic API.
type AnthropicExtractor struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicExtractor creates an extractor with the given API key and model.
func NewAnthropicExtractor(apiKey, model string) *AnthropicExtractor {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicExtractor{
		api:   &client,
		model: anthropic.Model(model),
	}
}

const extractSystemPrompt = `You extract structured intents from chat messages about production orders. Return ONLY a JSON object with these fields:
- "is_order_intent": true when the user wants to create a production order (or is supplying data for one in progress)
- "is_add_part_intent": true when the user lists parts (name, quantity) to register on an order
- "is_search_intent": true when the user wants to look records up
- "is_delete_intent": true when the user wants to remove an order or a part
- "is_update_intent": true when the user wants to change a field of an order or a part
- "search_query": the essential search term only — strip filler words like "client", "order", "search for"
- "delete_target": "order", "part", or "any"; "delete_query": the term identifying what to delete
- "update_target": "order", "part", or "any"; "update_query": the term identifying what to change
- "update_fields": object mapping field name to new value, e.g. {"total_price": 500}
- "missing_update_value": when the user named a field to change but gave no new value, put the field name here and leave update_fields empty
- "target_order_code": the order code an add-parts message names explicitly, else null
- "data": object with any of client_name (string), order_number (int), order_date (YYYY-MM-DD), delivery_date (YYYY-MM-DD), delivery_forecast (YYYY-MM-DD), total_price (number), tax (number) — accumulate over the partial data you are given, never drop a known value
- "parts_data": array of {"name": string, "quantity": int, "unit_price": number}
- "missing_fields": required order fields still unknown, from: client_name, order_number, order_date, delivery_date, total_price, tax
- "missing_message": one short natural question asking for the missing data, or null

Rules:
- Resolve references like "delete that one" or "change the price" against the recent history: extract the code or name the assistant last mentioned as the query.
- For prices extract the bare number ("1500 dollars" -> 1500.0).
- A generic request like "edit a part for Acme" with nothing concrete in history is a search, not an update.
- Return valid JSON only, no markdown fencing or explanation`

// buildExtractPrompt constructs the user prompt with partial data and history.
func buildExtractPrompt(message string, draft *models.OrderDraft, history []string) string {
	var sb strings.Builder

	sb.WriteString("Current partial order data:\n")
	if draft != nil {
		data, err := json.Marshal(draft)
		if err == nil && string(data) != "{}" {
			sb.Write(data)
		} else {
			sb.WriteString("none")
		}
	} else {
		sb.WriteString("none")
	}
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("Recent history:\n")
		sb.WriteString(strings.Join(history, "\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("User message:\n")
	sb.WriteString(message)
	return sb.String()
}

// Extract sends the message to the LLM and parses the intent JSON.
func (e *AnthropicExtractor) Extract(ctx context.Context, message string, draft *models.OrderDraft, history []string) (*Result, error) {
	text, err := e.complete(ctx, extractSystemPrompt, buildExtractPrompt(message, draft, history), 2048)
	if err != nil {
		return nil, err
	}
	return parseResult(text)
}

const chatSystemPrompt = `You are a helpful assistant for a production monitoring system. The user's message is not a system command (not creating, searching, editing, or deleting records). Answer briefly and offer what you can do: create orders, register parts, search records, and check production alerts.`

// Chat generates a free-form conversational response.
func (e *AnthropicExtractor) Chat(ctx context.Context, message string, history []string) (string, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent history:\n")
		sb.WriteString(strings.Join(history, "\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(message)

	return e.complete(ctx, chatSystemPrompt, sb.String(), 1024)
}

func (e *AnthropicExtractor) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := e.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text, nil
}

// parseResult decodes the model output, tolerating markdown fencing.
func parseResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	result := &Result{}
	if err := json.Unmarshal([]byte(text), result); err != nil {
		return nil, fmt.Errorf("parse extraction as JSON: %w", err)
	}
	return result, nil
}
