package common_tools

import (
	"testing"
)

func TestProductSearchTool_Declaration(t *testing.T) {
	tool := ProductSearchTool(NewCatalogClient("", 0, 0))
	if tool.Name != "product_search" {
		t.Errorf("expected name 'product_search', got %q", tool.Name)
	}
	if tool.Callable == nil {
		t.Error("Callable should not be nil")
	}
	if tool.Parameters.Type != "object" {
		t.Errorf("expected object type, got %q", tool.Parameters.Type)
	}
	if _, ok := tool.Parameters.Properties["query"]; !ok {
		t.Error("expected 'query' property")
	}
}

func TestDefaultTools(t *testing.T) {
	tools := DefaultTools(NewCatalogClient("", 0, 0))
	if len(tools) != 1 {
		t.Fatalf("expected 1 default tool, got %d", len(tools))
	}
	if tools[0].Name != "product_search" {
		t.Errorf("expected product_search, got %q", tools[0].Name)
	}
}
