package common_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCatalogBaseURL  = "http://10.10.7.77:3000"
	DefaultCatalogPageSize = 100
	DefaultCatalogTimeout  = 15 * time.Second
)

// CatalogClient fetches the product catalog from the commerce API.
type CatalogClient struct {
	BaseURL    string
	PageSize   int
	HTTPClient *http.Client
}

// NewCatalogClient returns a client with the given base URL and request timeout.
// Zero values fall back to the defaults.
func NewCatalogClient(baseURL string, pageSize int, timeout time.Duration) *CatalogClient {
	if baseURL == "" {
		baseURL = DefaultCatalogBaseURL
	}
	if pageSize <= 0 {
		pageSize = DefaultCatalogPageSize
	}
	if timeout <= 0 {
		timeout = DefaultCatalogTimeout
	}
	return &CatalogClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PageSize:   pageSize,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// FetchProducts returns the whole catalog page regardless of query; the model
// does the selecting. Failures are reported inside the result, never as an
// error, so the model can explain them to the user.
func (c *CatalogClient) FetchProducts(ctx context.Context, query string) models.CatalogResult {
	products, err := c.fetch(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("product catalog fetch failed")
		if isTimeout(err) {
			return failedCatalog("Request timed out. Please try again.")
		}
		return failedCatalog("Failed to fetch products. Details: " + err.Error())
	}
	if len(products) == 0 {
		return failedCatalog("No products found in the database.")
	}

	log.Ctx(ctx).Debug().Int("products", len(products)).Str("query", query).Msg("product catalog fetched")
	return models.CatalogResult{
		Success: true,
		Message: fmt.Sprintf("Found %d products. GPT will select the most relevant ones based on your query.", len(products)),
		Query:   query,
		Data:    products,
	}
}

func (c *CatalogClient) fetch(ctx context.Context) ([]json.RawMessage, error) {
	u, err := url.Parse(c.BaseURL + "/api/product/all")
	if err != nil {
		return nil, fmt.Errorf("invalid catalog URL: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), u.String())
	}

	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid catalog response: %w", err)
	}
	return body.Data, nil
}

func (c *CatalogClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func failedCatalog(msg string) models.CatalogResult {
	return models.CatalogResult{Success: false, Error: msg, Data: []json.RawMessage{}}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ProductSearchTool returns the FunctionDeclaration the chat model calls to
// load the catalog.
func ProductSearchTool(catalog *CatalogClient) models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "product_search",
		Description: "Search for products in the database. Returns all available products for the AI to analyze and select from.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What the user is looking for, e.g. 'red shirts in size M'",
				},
			},
			Required: []string{"query"},
		},
		Callable: func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			out, err := json.Marshal(catalog.FetchProducts(ctx, query))
			if err != nil {
				return "", fmt.Errorf("failed to encode catalog result: %w", err)
			}
			return string(out), nil
		},
	}
}
