package escpos

import "fmt"

// QRMaxBytes is the model 2 byte-mode capacity at the lowest error correction level
const QRMaxBytes = 7089

// QR error correction level M
const qrLevelM = 0x31

// QRCode emits the four-part GS ( k block: module size, error correction (M),
// store data and print. The order is fixed; printers reject anything else.
func QRCode(data string, moduleSize int) ([]byte, error) {
	payload := []byte(data)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidQR)
	}
	if len(payload) > QRMaxBytes {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidQR, len(payload), QRMaxBytes)
	}
	if moduleSize == 0 {
		moduleSize = 6
	}
	if moduleSize < 1 || moduleSize > 16 {
		return nil, fmt.Errorf("%w: module size %d", ErrInvalidQR, moduleSize)
	}

	pL, pH := QRLength(payload)

	out := make([]byte, 0, len(payload)+32)
	out = append(out, GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, byte(moduleSize))
	out = append(out, GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, qrLevelM)
	out = append(out, GS, 0x28, 0x6B, pL, pH, 0x31, 0x50, 0x30)
	out = append(out, payload...)
	out = append(out, GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30)
	return out, nil
}

// QRLength splits len(payload)+3 into little-endian pL, pH
func QRLength(payload []byte) (pL, pH byte) {
	n := len(payload) + 3
	return byte(n % 256), byte(n / 256)
}
