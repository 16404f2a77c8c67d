package imagegen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"contenthub/backend/pkg/models"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPlacement(t *testing.T) {
	// large logo scaled down to 8% of 1000px
	r := Placement(1000, 400, 200)
	assert.Equal(t, image.Rect(890, 30, 970, 70), r)

	// small logo keeps its size
	r = Placement(1000, 50, 20)
	assert.Equal(t, image.Rect(920, 30, 970, 50), r)

	// deterministic
	assert.Equal(t, Placement(1024, 300, 300), Placement(1024, 300, 300))
}

func TestCompositeStampsTopRight(t *testing.T) {
	base := encodePNG(t, solid(1000, 500, color.White))
	logo, err := NewBrandMark(encodePNG(t, solid(50, 20, color.RGBA{R: 255, A: 255})))
	require.NoError(t, err)

	out, err := logo.Composite(base)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1000, img.Bounds().Dx())

	r, g, _, _ := img.At(940, 40).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)

	r, g, _, _ = img.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
}

func TestCompositeScalesLargeLogo(t *testing.T) {
	base := encodePNG(t, solid(1000, 1000, color.White))
	logo, err := NewBrandMark(encodePNG(t, solid(400, 400, color.RGBA{B: 255, A: 255})))
	require.NoError(t, err)

	out, err := logo.Composite(base)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	// inside the 80x80 placement
	r0, _, b, _ := img.At(930, 70).RGBA()
	assert.Greater(t, b, uint32(0xf000))
	assert.Less(t, r0, uint32(0x1000))
	// left of the placement is untouched
	r, _, _, _ := img.At(850, 70).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestCompositeRejectsGarbage(t *testing.T) {
	logo, err := NewBrandMark(encodePNG(t, solid(10, 10, color.Black)))
	require.NoError(t, err)
	_, err = logo.Composite([]byte("not an image"))
	assert.Error(t, err)

	_, err = NewBrandMark([]byte("nope"))
	assert.Error(t, err)
	_, err = LoadBrandMark("/does/not/exist.png")
	assert.Error(t, err)
}

func TestEnsurePNG(t *testing.T) {
	pngBytes := encodePNG(t, solid(4, 4, color.Black))
	out, err := EnsurePNG(pngBytes)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, out)

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, solid(4, 4, color.Black), nil))
	out, err = EnsurePNG(jpg.Bytes())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, pngSignature))

	_, err = EnsurePNG([]byte("garbage"))
	assert.Error(t, err)
}

func TestRatioMapping(t *testing.T) {
	assert.Equal(t, models.AspectRatio("16:9"), imagenRatio("16:9"))
	assert.Equal(t, models.AspectRatio("16:9"), imagenRatio("21:9"))
	assert.Equal(t, models.AspectRatio("9:16"), imagenRatio("4:5"))
	assert.Equal(t, models.AspectRatio("1:1"), imagenRatio("bogus"))

	assert.Equal(t, openai.ImageGenerateParamsSize1536x1024, openAISize("gpt-image-1", "3:2"))
	assert.Equal(t, openai.ImageGenerateParamsSize1024x1792, openAISize("dall-e-3", "9:16"))
	assert.Equal(t, openai.ImageGenerateParamsSize1024x1024, openAISize("gpt-image-1", "1:1"))
}

func TestFirstInlineImage(t *testing.T) {
	pngBytes := encodePNG(t, solid(2, 2, color.White))
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngBytes}},
			}},
		}},
	}
	out, err := firstInlineImage(resp)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, out)

	_, err = firstInlineImage(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrNoImage)
	_, err = firstInlineImage(nil)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Settings{Backend: "gemini"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(context.Background(), Settings{Backend: "midjourney", APIKey: "k"})
	assert.Error(t, err)

	r, err := New(context.Background(), Settings{Backend: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-image-1", r.Model())

	_, err = r.Render(context.Background(), RenderRequest{Prompt: "x", Reference: []byte{1}})
	assert.ErrorIs(t, err, ErrReferenceUnsupported)
}
