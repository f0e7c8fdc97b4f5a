package common_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Desarso/shopbot/fuzzy"
	"github.com/Desarso/shopbot/models"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedImage is returned for uploads whose extension is not an allowed image type.
var ErrUnsupportedImage = errors.New("unsupported image type")

// AllowedImageExtensions lists the upload extensions accepted for analysis.
var AllowedImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff"}

// ImageExtension returns the lower-cased extension of filename, or
// ErrUnsupportedImage when it is not in AllowedImageExtensions.
func ImageExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedImageExtensions {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, filepath.Ext(filename))
}

// ImageAnalyzer classifies product photos into a category and a color taken
// from the commerce API's vocabularies.
type ImageAnalyzer struct {
	Vocabulary VocabularySource
	Model      models.VisionModel
}

func NewImageAnalyzer(vocabulary VocabularySource, model models.VisionModel) *ImageAnalyzer {
	return &ImageAnalyzer{Vocabulary: vocabulary, Model: model}
}

// Analyze reads the image at path and classifies it. Every failure after the
// file is accepted degrades to a null category and color.
func (a *ImageAnalyzer) Analyze(ctx context.Context, path string) models.Classification {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("cannot read image")
		return models.Classification{}
	}
	return a.AnalyzeBytes(ctx, data, filepath.Ext(path))
}

// AnalyzeBytes classifies an in-memory image. ext is used to pick the MIME
// type when the content cannot be sniffed.
func (a *ImageAnalyzer) AnalyzeBytes(ctx context.Context, data []byte, ext string) models.Classification {
	logger := log.Ctx(ctx)

	var categories, colors []string
	if a.Vocabulary == nil {
		logger.Warn().Msg("no vocabulary source configured")
		categories, colors = []string{}, []string{}
	} else {
		categories = fetchVocabulary(ctx, "categories", a.Vocabulary.Categories)
		colors = fetchVocabulary(ctx, "colors", a.Vocabulary.Colors)
	}

	if a.Model == nil {
		logger.Warn().Msg("no vision model configured")
		return models.Classification{}
	}

	image := models.InlineData{
		MimeType: imageMimeType(data, ext),
		Data:     base64.StdEncoding.EncodeToString(data),
	}
	content, err := a.Model.Describe(ctx, ClassificationPrompt(categories, colors), image)
	if err != nil {
		logger.Warn().Err(err).Msg("vision model call failed")
		return models.Classification{}
	}
	if strings.TrimSpace(content) == "" {
		logger.Warn().Msg("vision model returned empty content")
		return models.Classification{}
	}

	category, color, err := ParseClassification(content)
	if err != nil {
		logger.Warn().Err(err).Str("content", content).Msg("cannot parse vision model output")
		return models.Classification{}
	}

	var out models.Classification
	if category != nil {
		if m, ok := fuzzy.Match(*category, categories); ok {
			out.Category = &m
		}
	}
	if color != nil {
		if m, ok := fuzzy.Match(*color, colors); ok {
			out.Color = &m
		}
	}
	logger.Info().
		Interface("guess_category", category).
		Interface("guess_color", color).
		Interface("category", out.Category).
		Interface("color", out.Color).
		Msg("image classified")
	return out
}

func fetchVocabulary(ctx context.Context, name string, fetch func(context.Context) ([]string, error)) []string {
	list, err := fetch(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("vocabulary", name).Msg("vocabulary fetch failed, using empty list")
		return []string{}
	}
	return list
}

// ClassificationPrompt builds the instruction sent with the image.
func ClassificationPrompt(categories, colors []string) string {
	return "Analyze the image and identify the product category and color. " +
		"Choose the category from this list: " + jsonList(categories) + ". " +
		"Choose the color from this list: " + jsonList(colors) + ". " +
		`Return the result in JSON format as follows: {"category": "<category>", "color": "<color>"}. ` +
		"Ensure the response is valid JSON and contains only the category and color fields. " +
		"If you cannot determine the category or color from the provided lists, use null for that field."
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

var codeFence = regexp.MustCompile("^```(?:json)?\\s*|\\s*```$")

// ParseClassification decodes the model's JSON answer. Both keys must be
// present; a null or non-string value comes back as nil.
func ParseClassification(content string) (category, color *string, err error) {
	content = strings.TrimSpace(codeFence.ReplaceAllString(strings.TrimSpace(content), ""))

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	rawCategory, hasCategory := parsed["category"]
	rawColor, hasColor := parsed["color"]
	if !hasCategory || !hasColor {
		return nil, nil, errors.New("response must contain category and color")
	}
	return stringPtr(rawCategory), stringPtr(rawColor), nil
}

func stringPtr(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// imageMimeType sniffs the content first, then the extension.
func imageMimeType(data []byte, ext string) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(ext)); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
