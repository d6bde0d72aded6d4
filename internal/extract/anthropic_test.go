package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrandao/opchat/internal/models"
)

func TestBuildExtractPrompt(t *testing.T) {
	t.Run("with partial data and history", func(t *testing.T) {
		client := "Acme"
		draft := &models.OrderDraft{ClientName: &client}
		history := []string{"USER: create an order", "ASSISTANT: for which client?"}

		user := buildExtractPrompt("for Acme", draft, history)

		assert.Contains(t, user, `"client_name":"Acme"`)
		assert.Contains(t, user, "USER: create an order")
		assert.Contains(t, user, "ASSISTANT: for which client?")
		assert.Contains(t, user, "for Acme")
	})

	t.Run("without context", func(t *testing.T) {
		user := buildExtractPrompt("hello", nil, nil)

		assert.Contains(t, user, "none")
		assert.NotContains(t, user, "Recent history")
		assert.Contains(t, user, "hello")
	})

	t.Run("empty draft reads as none", func(t *testing.T) {
		user := buildExtractPrompt("hello", &models.OrderDraft{}, nil)
		assert.Contains(t, user, "none")
	})
}

func TestExtractSystemPrompt_NamesAllFields(t *testing.T) {
	for _, key := range []string{
		"is_order_intent", "is_add_part_intent", "is_search_intent",
		"is_delete_intent", "is_update_intent",
		"search_query", "delete_target", "delete_query",
		"update_target", "update_query", "update_fields",
		"missing_update_value", "parts_data", "missing_fields", "missing_message",
	} {
		assert.Contains(t, extractSystemPrompt, key)
	}
}

func TestParseResult(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		res, err := parseResult(`{"is_search_intent": true, "search_query": "Acme"}`)
		require.NoError(t, err)
		assert.True(t, res.SearchIntent)
		assert.Equal(t, "Acme", res.SearchQuery)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		res, err := parseResult("```json\n{\"is_delete_intent\": true, \"delete_target\": \"part\", \"delete_query\": \"nipple\"}\n```")
		require.NoError(t, err)
		assert.True(t, res.DeleteIntent)
		assert.Equal(t, TargetPart, res.DeleteTarget)
		assert.Equal(t, "nipple", res.DeleteQuery)
	})

	t.Run("order data payload", func(t *testing.T) {
		res, err := parseResult(`{
			"is_order_intent": true,
			"data": {"client_name": "Acme", "delivery_date": "2025-06-01", "total_price": 1500},
			"parts_data": [{"name": "nipple", "quantity": 10, "unit_price": 2.5}],
			"missing_fields": ["order_number"],
			"missing_message": "What is the order number?"
		}`)
		require.NoError(t, err)
		assert.True(t, res.OrderIntent)
		require.NotNil(t, res.Data)
		assert.Equal(t, "Acme", *res.Data.ClientName)
		assert.Equal(t, 1500.0, *res.Data.TotalPrice)
		require.Len(t, res.PartsData, 1)
		assert.Equal(t, 10, res.PartsData[0].Quantity)
		assert.Equal(t, []string{"order_number"}, res.MissingFields)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseResult("not json at all")
		assert.Error(t, err)
	})
}
