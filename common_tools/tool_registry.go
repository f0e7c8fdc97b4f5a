package common_tools

import "github.com/Desarso/shopbot/models"

// DefaultTools returns the tools offered to the shopping assistant.
func DefaultTools(catalog *CatalogClient) []models.FunctionDeclaration {
	return []models.FunctionDeclaration{
		ProductSearchTool(catalog),
	}
}
