package sessions

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 290

// RenderQR encodes payload into a PNG QR code. Low recovery keeps the symbol small;
// the payload is short and displayed on a projector, not printed.
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(payload, qrcode.Low, size)
}

// DataURL wraps a PNG so browsers can show it inline.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
