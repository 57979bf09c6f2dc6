package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/vision"
)

// wholeImageLadder is the profile order for reading a full code image in one
// pass. Digit-restricted profiles run first; the unrestricted tail catches
// engines that misbehave with a whitelist on degraded input.
var wholeImageLadder = []Profile{
	{Mode: ModeWord, DigitsOnly: true},
	{Mode: ModeLine, DigitsOnly: true},
	{Mode: ModeBlock, DigitsOnly: true},
	{Mode: ModeRawLine, DigitsOnly: true},
	{Mode: ModeChar, DigitsOnly: true},
	{Mode: ModeWord},
	{Mode: ModeLine},
	{Mode: ModeBlock},
	{Mode: ModeChar},
}

// glyphLadder is the profile order for a single pre-cut glyph.
var glyphLadder = []Profile{
	{Mode: ModeChar, DigitsOnly: true},
	{Mode: ModeWord, DigitsOnly: true},
	{Mode: ModeLine, DigitsOnly: true},
}

// Extractor turns binarized variants into code candidates. It accepts only
// exact-length results; partial reads are worse than no read because a typed
// wrong code burns a submission attempt.
type Extractor struct {
	engine     Engine
	codeLength int
	logger     *zap.Logger
}

func NewExtractor(engine Engine, codeLength int, logger *zap.Logger) *Extractor {
	return &Extractor{
		engine:     engine,
		codeLength: codeLength,
		logger:     logger.Named("ocr"),
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// WholeImage climbs the profile ladder over the variant's full image and
// returns the first exact-length digit string.
func (e *Extractor) WholeImage(ctx context.Context, v vision.Variant) (string, error) {
	data, err := encodePNG(v.Image)
	if err != nil {
		return "", err
	}
	for _, profile := range wholeImageLadder {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := e.engine.Recognize(ctx, data, profile)
		if err != nil {
			e.logger.Debug("Recognition pass failed",
				zap.String("strategy", v.Strategy), zap.Error(err))
			continue
		}
		code := digitsOf(raw)
		if len(code) == e.codeLength {
			e.logger.Debug("Whole-image read accepted",
				zap.String("strategy", v.Strategy), zap.String("code", code))
			return code, nil
		}
	}
	return "", fmt.Errorf("whole image %s: %w", v.Strategy, schemas.ErrRecognitionFailed)
}

// Segmented reads a segmented variant glyph by glyph. The result is accepted
// only when every glyph resolves to one digit and the digit count matches the
// required length; confidence is the number of glyphs read, so callers can
// rank competing variants.
func (e *Extractor) Segmented(ctx context.Context, v vision.Variant) (string, int, error) {
	if !v.Segmented() {
		return "", 0, fmt.Errorf("variant %s has no glyphs: %w", v.Strategy, schemas.ErrRecognitionFailed)
	}

	var code strings.Builder
	read := 0
	for _, glyph := range v.Glyphs {
		data, err := encodePNG(glyph.Image)
		if err != nil {
			return "", 0, err
		}
		digit := ""
		for _, profile := range glyphLadder {
			if err := ctx.Err(); err != nil {
				return "", 0, err
			}
			raw, err := e.engine.Recognize(ctx, data, profile)
			if err != nil {
				continue
			}
			d := digitsOf(raw)
			if len(d) == 1 {
				digit = d
				break
			}
		}
		if digit == "" {
			continue
		}
		code.WriteString(digit)
		read++
	}

	if read != e.codeLength || code.Len() != e.codeLength {
		return "", read, fmt.Errorf("segmented %s read %d of %d glyphs: %w",
			v.Strategy, read, e.codeLength, schemas.ErrRecognitionFailed)
	}
	e.logger.Debug("Segmented read accepted",
		zap.String("strategy", v.Strategy), zap.String("code", code.String()))
	return code.String(), read, nil
}
