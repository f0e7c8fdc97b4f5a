package common_tools

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Desarso/shopbot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PNG signature followed by padding; enough for content sniffing.
var tinyPNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 24)...)

type fakeVocabulary struct {
	categories, colors []string
	err                error
}

func (f fakeVocabulary) Categories(context.Context) ([]string, error) { return f.categories, f.err }
func (f fakeVocabulary) Colors(context.Context) ([]string, error)     { return f.colors, f.err }

type fakeVision struct {
	reply  string
	err    error
	prompt string
	image  models.InlineData
	calls  int
}

func (f *fakeVision) Describe(_ context.Context, prompt string, image models.InlineData) (string, error) {
	f.calls++
	f.prompt = prompt
	f.image = image
	return f.reply, f.err
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, tinyPNG, 0o600))
	return path
}

func TestAnalyze_FuzzyMatchesOntoVocabulary(t *testing.T) {
	vision := &fakeVision{reply: "```json\n{\"category\": \"T-Shirts\", \"color\": \"Navy Blue\"}\n```"}
	analyzer := NewImageAnalyzer(fakeVocabulary{
		categories: []string{"Jeans", "t-shirts"},
		colors:     []string{"Red", "Blue"},
	}, vision)

	got := analyzer.Analyze(context.Background(), writeImage(t))
	require.NotNil(t, got.Category)
	require.NotNil(t, got.Color)
	assert.Equal(t, "t-shirts", *got.Category)
	assert.Equal(t, "Blue", *got.Color)

	assert.Equal(t, "image/png", vision.image.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(tinyPNG), vision.image.Data)
	assert.Contains(t, vision.prompt, `["Jeans","t-shirts"]`)
	assert.Contains(t, vision.prompt, `["Red","Blue"]`)
}

func TestAnalyze_NoMatchGivesNull(t *testing.T) {
	vision := &fakeVision{reply: `{"category": "Shoes", "color": "maroon"}`}
	analyzer := NewImageAnalyzer(fakeVocabulary{categories: []string{"Jeans"}, colors: []string{"red"}}, vision)

	got := analyzer.Analyze(context.Background(), writeImage(t))
	assert.Nil(t, got.Category)
	assert.Nil(t, got.Color)
}

func TestAnalyze_VocabularyFailureStillCallsModel(t *testing.T) {
	vision := &fakeVision{reply: `{"category": "Shoes", "color": "red"}`}
	analyzer := NewImageAnalyzer(fakeVocabulary{err: errors.New("down")}, vision)

	got := analyzer.Analyze(context.Background(), writeImage(t))
	assert.Equal(t, 1, vision.calls)
	assert.Contains(t, vision.prompt, "from this list: []")
	assert.Nil(t, got.Category)
	assert.Nil(t, got.Color)
}

func TestAnalyze_ModelErrorGivesNull(t *testing.T) {
	vision := &fakeVision{err: models.ErrMissingAPIKey}
	analyzer := NewImageAnalyzer(fakeVocabulary{categories: []string{"Jeans"}, colors: []string{"red"}}, vision)

	got := analyzer.Analyze(context.Background(), writeImage(t))
	assert.Equal(t, models.Classification{}, got)
}

func TestAnalyze_MissingFileGivesNull(t *testing.T) {
	vision := &fakeVision{reply: `{"category":"Jeans","color":"red"}`}
	analyzer := NewImageAnalyzer(fakeVocabulary{}, vision)

	got := analyzer.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, models.Classification{}, got)
	assert.Equal(t, 0, vision.calls)
}

func TestAnalyze_NilModelGivesNull(t *testing.T) {
	analyzer := NewImageAnalyzer(fakeVocabulary{categories: []string{"Jeans"}}, nil)
	assert.Equal(t, models.Classification{}, analyzer.Analyze(context.Background(), writeImage(t)))
}

func TestAnalyzeBytes_NilVocabularyUsesEmptyLists(t *testing.T) {
	vision := &fakeVision{reply: `{"category": "Jeans", "color": "red"}`}
	analyzer := NewImageAnalyzer(nil, vision)

	var got models.Classification
	require.NotPanics(t, func() {
		got = analyzer.AnalyzeBytes(context.Background(), tinyPNG, ".png")
	})
	assert.Equal(t, 1, vision.calls)
	assert.Contains(t, vision.prompt, "from this list: []")
	assert.Equal(t, models.Classification{}, got)
}

func TestParseClassification(t *testing.T) {
	cat, col, err := ParseClassification("```json\n{\"category\": \"Jeans\", \"color\": null}\n```")
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, "Jeans", *cat)
	assert.Nil(t, col)

	_, _, err = ParseClassification(`{"category": "Jeans"}`)
	assert.Error(t, err)

	_, _, err = ParseClassification("I think it's a red shirt")
	assert.Error(t, err)

	_, _, err = ParseClassification(`["Jeans","red"]`)
	assert.Error(t, err)
}

func TestImageExtension(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.gif", "e.bmp", "f.tiff"} {
		_, err := ImageExtension(name)
		assert.NoError(t, err, name)
	}
	ext, err := ImageExtension("photo.JPEG")
	require.NoError(t, err)
	assert.Equal(t, ".jpeg", ext)

	for _, name := range []string{"a.webp", "b.txt", "noext"} {
		_, err := ImageExtension(name)
		assert.ErrorIs(t, err, ErrUnsupportedImage, name)
	}
}

func TestVocabularyClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/category/ai":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"category_name":"Jeans"},{"category_name":"Shirts"}]}`))
		case "/api/product/ai-colors":
			_, _ = w.Write([]byte(`{"success":false,"data":["red"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewVocabularyClient(srv.URL, time.Second)
	cats, err := client.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Jeans", "Shirts"}, cats)

	colors, err := client.Colors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, colors)

	broken := NewVocabularyClient(srv.URL+"/missing", time.Second)
	_, err = broken.Categories(context.Background())
	assert.Error(t, err)
}
