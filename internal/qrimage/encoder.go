// Package qrimage renders QR code PNGs.
package qrimage

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Encoder renders at medium error correction (~15% recovery), enough for small prints.
type Encoder struct {
	Size int
}

func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{Size: size}
}

func (e *Encoder) Encode(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("encode qr: empty content")
	}
	png, err := qrcode.Encode(content, qrcode.Medium, e.Size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
