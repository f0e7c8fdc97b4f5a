package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(s string) *json.Number {
	n := json.Number(s)
	return &n
}

func TestPriceDisplay_OfferDiffers(t *testing.T) {
	p := Product{Price: num("1200"), OfferPrice: num("800")}
	assert.Equal(t, "$800 (was $1200)", p.PriceDisplay())
}

func TestPriceDisplay_OfferEqualsPrice(t *testing.T) {
	p := Product{Price: num("1200"), OfferPrice: num("1200")}
	assert.Equal(t, "$1200", p.PriceDisplay())

	p = Product{Price: num("1200"), OfferPrice: num("1200.0")}
	assert.Equal(t, "$1200", p.PriceDisplay())
}

func TestPriceDisplay_NoOffer(t *testing.T) {
	assert.Equal(t, "$1200", Product{Price: num("1200")}.PriceDisplay())
	assert.Equal(t, "$1200", Product{Price: num("1200"), OfferPrice: num("0")}.PriceDisplay())
}

func TestPriceDisplay_OnlyOffer(t *testing.T) {
	assert.Equal(t, "$799", Product{OfferPrice: num("799")}.PriceDisplay())
}

func TestPriceDisplay_Missing(t *testing.T) {
	assert.Equal(t, "$N/A", Product{}.PriceDisplay())
}

func TestProduct_DecodesQuotedAndNullPrices(t *testing.T) {
	var p Product
	err := json.Unmarshal([]byte(`{"id":7,"product_name":"Jacket","price":"49.90","offer_price":null}`), &p)
	require.NoError(t, err)
	assert.Nil(t, p.OfferPrice)
	assert.Equal(t, "$49.90", p.PriceDisplay())
}

func TestCloneMessages_DoesNotAlias(t *testing.T) {
	orig := []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "product_search"}}}}
	cp := CloneMessages(orig)
	cp[0].ToolCalls[0].ID = "b"
	cp = append(cp, Message{Role: RoleUser})
	assert.Equal(t, "a", orig[0].ToolCalls[0].ID)
	assert.Len(t, orig, 1)
	assert.True(t, orig[0].HasToolCalls())
}

func TestCloneMessages_CopiesArguments(t *testing.T) {
	orig := []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{
		ID:        "a",
		Name:      "product_search",
		Arguments: map[string]interface{}{
			"query":   "shoes",
			"filters": map[string]interface{}{"color": "red"},
			"tags":    []interface{}{"sale"},
		},
	}}}}
	cp := CloneMessages(orig)

	orig[0].ToolCalls[0].Arguments["query"] = "boots"
	orig[0].ToolCalls[0].Arguments["filters"].(map[string]interface{})["color"] = "blue"
	orig[0].ToolCalls[0].Arguments["tags"].([]interface{})[0] = "new"

	args := cp[0].ToolCalls[0].Arguments
	assert.Equal(t, "shoes", args["query"])
	assert.Equal(t, map[string]interface{}{"color": "red"}, args["filters"])
	assert.Equal(t, []interface{}{"sale"}, args["tags"])
}

func TestCloneMessages_KeepsNilAndEmpty(t *testing.T) {
	assert.Nil(t, CloneMessages(nil))

	orig := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "product_search"}}},
	}
	cp := CloneMessages(orig)
	require.Len(t, cp, 2)
	assert.Nil(t, cp[0].ToolCalls)
	assert.Nil(t, cp[1].ToolCalls[0].Arguments)
	assert.Equal(t, orig, cp)
}
