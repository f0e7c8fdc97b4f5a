package common_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// VocabularySource supplies the category and color lists images are
// classified against.
type VocabularySource interface {
	Categories(ctx context.Context) ([]string, error)
	Colors(ctx context.Context) ([]string, error)
}

// VocabularyClient reads vocabularies from the commerce API.
type VocabularyClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewVocabularyClient(baseURL string, timeout time.Duration) *VocabularyClient {
	if baseURL == "" {
		baseURL = DefaultCatalogBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultCatalogTimeout
	}
	return &VocabularyClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Categories returns the category names. A response with success=false
// yields an empty list.
func (v *VocabularyClient) Categories(ctx context.Context) ([]string, error) {
	var body struct {
		Success bool `json:"success"`
		Data    []struct {
			CategoryName string `json:"category_name"`
		} `json:"data"`
	}
	if err := v.get(ctx, "/api/category/ai", &body); err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	if !body.Success {
		return []string{}, nil
	}
	out := make([]string, 0, len(body.Data))
	for _, c := range body.Data {
		out = append(out, c.CategoryName)
	}
	return out, nil
}

// Colors returns the color names. A response with success=false yields an
// empty list.
func (v *VocabularyClient) Colors(ctx context.Context) ([]string, error) {
	var body struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	if err := v.get(ctx, "/api/product/ai-colors", &body); err != nil {
		return nil, fmt.Errorf("fetch colors: %w", err)
	}
	if !body.Success || body.Data == nil {
		return []string{}, nil
	}
	return body.Data, nil
}

func (v *VocabularyClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
