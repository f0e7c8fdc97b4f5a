// Package common_tools provides the tools and clients the shopping assistant
// uses against the commerce API.
//
// Available tools:
//   - product_search: Fetch the product catalog for the model to choose from
//
// The package also holds the vocabulary client and the image classification
// pipeline built on it.
package common_tools
