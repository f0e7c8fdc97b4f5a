package sessions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Desarso/shopbot/models"
)

const (
	noProductsSummary = "No products found matching your criteria. The product database returned no results."
	malformedSummary  = "Error parsing product data: The server returned invalid data. Please try again later."
)

// productSummary is the compact projection of a Product shown to the model.
type productSummary struct {
	ID          interface{}   `json:"id"`
	Name        string        `json:"name"`
	Price       string        `json:"price"`
	Colors      []interface{} `json:"colors"`
	Sizes       []interface{} `json:"sizes"`
	Description string        `json:"description"`
}

// FormatToolOutput turns a raw product_search payload into the text summary
// appended after the tool result. It never fails: malformed payloads produce
// a fixed error summary.
func FormatToolOutput(raw string) string {
	var payload struct {
		Success *bool           `json:"success"`
		Error   *string         `json:"error"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return malformedSummary
	}

	if payload.Success != nil && !*payload.Success {
		msg := "Unknown error occurred"
		if payload.Error != nil {
			msg = *payload.Error
		}
		return fmt.Sprintf("Product search error: %s. Please try again or ask for help with something else.", msg)
	}

	data := bytes.TrimSpace(payload.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("[]")) {
		return noProductsSummary
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return malformedSummary
	}
	if len(products) == 0 {
		return noProductsSummary
	}

	summaries := make([]productSummary, 0, len(products))
	for _, p := range products {
		s := productSummary{
			ID:          p.ID,
			Name:        "Unknown Product",
			Price:       p.PriceDisplay(),
			Colors:      p.Colors,
			Sizes:       p.Sizes,
			Description: "No description available",
		}
		if p.ProductName != nil {
			s.Name = *p.ProductName
		}
		if p.Description != nil {
			s.Description = *p.Description
		}
		if s.Colors == nil {
			s.Colors = []interface{}{}
		}
		if s.Sizes == nil {
			s.Sizes = []interface{}{}
		}
		summaries = append(summaries, s)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return malformedSummary
	}
	return fmt.Sprintf("Found %d products. Here are the available products:\n%s", len(products), strings.TrimRight(buf.String(), "\n"))
}

// ExtractReply returns the user-facing answer of a turn: the last assistant
// message that is neither a tool call nor a tool summary, decoded as a
// ChatReply. Content that is not a JSON reply is passed through verbatim as
// the message with null products.
func ExtractReply(msgs []models.Message) models.ChatReply {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != models.RoleAssistant || m.HasToolCalls() || m.Kind == models.KindToolSummary {
			continue
		}
		return decodeReply(m.Content)
	}
	return models.ChatReply{}
}

func decodeReply(content string) models.ChatReply {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(trimmed), "```"))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err == nil {
		if _, ok := fields["message"]; ok {
			var reply models.ChatReply
			if err := json.Unmarshal([]byte(trimmed), &reply); err == nil {
				return reply
			}
		}
	}
	return models.ChatReply{Message: content}
}
