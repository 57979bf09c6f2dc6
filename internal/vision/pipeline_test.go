package vision

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drawBars renders white digit-sized bars on black at the given x offsets.
func drawBars(w, h int, xs []int) image.Image {
	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)
	for _, x := range xs {
		dc.DrawRectangle(float64(x), 8, 12, 20)
		dc.Fill()
	}
	return dc.Image()
}

func TestOtsuSplitsBimodalImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			v := uint8(50)
			if x >= 5 {
				v = 200
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	thr := OtsuThreshold(img)
	assert.GreaterOrEqual(t, thr, uint8(50))
	assert.Less(t, thr, uint8(200))

	bin := Otsu(img, false)
	assert.EqualValues(t, 0, bin.GrayAt(0, 0).Y)
	assert.EqualValues(t, 255, bin.GrayAt(9, 0).Y)
}

func TestExtractChannels(t *testing.T) {
	dc := gg.NewContext(4, 4)
	dc.SetRGB(1, 0, 0)
	dc.Clear()
	img := dc.Image()

	assert.EqualValues(t, 255, Extract(img, ChannelRed).GrayAt(0, 0).Y)
	assert.EqualValues(t, 0, Extract(img, ChannelGreen).GrayAt(0, 0).Y)
	assert.EqualValues(t, 0, Extract(img, ChannelBlue).GrayAt(0, 0).Y)
	assert.EqualValues(t, 255, Extract(img, ChannelValue).GrayAt(0, 0).Y)
}

func TestSegmentGlyphsOrderAndWindow(t *testing.T) {
	// Four bars inside the digit window plus a speck and a slab outside it.
	img := drawBars(160, 40, []int{100, 20, 60, 135})
	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(2, 2, 3, 3) // speck, below min size
	dc.Fill()
	dc.DrawRectangle(0, 36, 120, 4) // slab, wider than max
	dc.Fill()

	bin := Otsu(Extract(dc.Image(), ChannelLuma), false)
	glyphs := SegmentGlyphs(bin)

	require.Len(t, glyphs, 4)
	for i := 1; i < len(glyphs); i++ {
		assert.Less(t, glyphs[i-1].Bounds.Min.X, glyphs[i].Bounds.Min.X,
			"glyphs must come out left to right")
	}
	for _, g := range glyphs {
		assert.Equal(t, image.Rect(0, 0, 20, 30), g.Image.Bounds())
	}
}

func TestDeskewLeavesLevelImagesAlone(t *testing.T) {
	gray := Extract(drawBars(100, 40, []int{30}), ChannelLuma)
	out := Deskew(gray)
	assert.Same(t, gray, out)
}

func TestWholeImageVariantsAreDeterministic(t *testing.T) {
	src := drawBars(160, 40, []int{20, 60, 100, 135})

	a := WholeImage(src)
	b := WholeImage(src)
	require.Len(t, a, 4)
	require.Len(t, b, 4)

	for i := range a {
		assert.Equal(t, a[i].Strategy, b[i].Strategy)
		var bufA, bufB bytes.Buffer
		require.NoError(t, png.Encode(&bufA, a[i].Image))
		require.NoError(t, png.Encode(&bufB, b[i].Image))
		assert.Equal(t, bufA.Bytes(), bufB.Bytes(), "strategy %s", a[i].Strategy)
	}
}

func TestSegmentFindsBarsAcrossChannels(t *testing.T) {
	// Red bars on black: invisible in the green and blue projections but
	// present in luma, red and value.
	dc := gg.NewContext(160, 40)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 0, 0)
	for _, x := range []int{20, 60, 100, 135} {
		dc.DrawRectangle(float64(x), 8, 12, 20)
		dc.Fill()
	}

	variants := Segment(dc.Image())
	require.NotEmpty(t, variants)

	strategies := make(map[string]int)
	for _, v := range variants {
		assert.True(t, v.Segmented())
		strategies[v.Strategy] = len(v.Glyphs)
	}
	assert.Equal(t, 4, strategies["seg-red-otsu"])
}

func TestCLAHEPreservesBounds(t *testing.T) {
	gray := Extract(drawBars(160, 40, []int{20}), ChannelLuma)
	out := CLAHE(gray, claheClip, claheTiles, claheTiles)
	assert.Equal(t, gray.Bounds().Dx(), out.Bounds().Dx())
	assert.Equal(t, gray.Bounds().Dy(), out.Bounds().Dy())
}
