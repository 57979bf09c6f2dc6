package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is the production Engine, backed by the system tesseract library.
type Tesseract struct {
	// TessdataPrefix overrides the trained-data directory when non-empty.
	TessdataPrefix string
}

var _ Engine = (*Tesseract)(nil)

var segModeMap = map[SegMode]gosseract.PageSegMode{
	ModeBlock:   gosseract.PSM_SINGLE_BLOCK,
	ModeLine:    gosseract.PSM_SINGLE_LINE,
	ModeWord:    gosseract.PSM_SINGLE_WORD,
	ModeRawLine: gosseract.PSM_RAW_LINE,
	ModeChar:    gosseract.PSM_SINGLE_CHAR,
}

// Recognize runs one pass. A fresh client per call keeps the cgo handle off
// shared state; recognition latency dwarfs the client setup cost anyway.
func (t *Tesseract) Recognize(ctx context.Context, png []byte, profile Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return "", fmt.Errorf("tessdata prefix: %w", err)
		}
	}

	mode, ok := segModeMap[profile.Mode]
	if !ok {
		return "", fmt.Errorf("unknown segmentation mode %d", profile.Mode)
	}
	if err := client.SetPageSegMode(mode); err != nil {
		return "", fmt.Errorf("set seg mode: %w", err)
	}
	if profile.DigitsOnly {
		if err := client.SetWhitelist("0123456789"); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return strings.TrimSpace(text), nil
}
