package models

import (
	"encoding/json"
	"strconv"
)

// Product is a catalog item as returned by the commerce API. Only the fields
// the assistant consumes are decoded; prices keep their original textual form.
type Product struct {
	ID          interface{}   `json:"id"`
	ProductName *string       `json:"product_name"`
	Description *string       `json:"description"`
	Price       *json.Number  `json:"price"`
	OfferPrice  *json.Number  `json:"offer_price"`
	Colors      []interface{} `json:"colors"`
	Sizes       []interface{} `json:"sizes"`
}

// CatalogResult is the payload the product_search tool hands back to the model.
type CatalogResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Query   string            `json:"query,omitempty"`
	Error   string            `json:"error,omitempty"`
	Data    []json.RawMessage `json:"data"`
}

// PriceDisplay renders the price shown to the model: the offer price with the
// list price in parentheses when both are set and differ, otherwise whichever
// is present. A zero offer price counts as no offer.
func (p Product) PriceDisplay() string {
	offer := p.OfferPrice
	if offer != nil && isZero(*offer) {
		offer = nil
	}
	switch {
	case offer != nil && p.Price != nil && !sameNumber(*offer, *p.Price):
		return "$" + offer.String() + " (was $" + p.Price.String() + ")"
	case p.Price != nil:
		return "$" + p.Price.String()
	case offer != nil:
		return "$" + offer.String()
	default:
		return "$N/A"
	}
}

func isZero(n json.Number) bool {
	f, err := strconv.ParseFloat(n.String(), 64)
	return err == nil && f == 0
}

func sameNumber(a, b json.Number) bool {
	fa, errA := strconv.ParseFloat(a.String(), 64)
	fb, errB := strconv.ParseFloat(b.String(), 64)
	if errA != nil || errB != nil {
		return a.String() == b.String()
	}
	return fa == fb
}
