package picture

import "bytes"

var (
	magicTIFFLE = []byte{'I', 'I', 0x2a, 0x00}
	magicTIFFBE = []byte{'M', 'M', 0x00, 0x2a}
	magicJPEG   = []byte{0xff, 0xd8}
	magicPNG    = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	magicPSD    = []byte("8BPS")
	magicDOSEPS = []byte{0xc5, 0xd0, 0xd3, 0xc6}
	magicPS     = []byte("%!")
)

// Sniff identifies the container from the leading magic bytes.
func Sniff(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, magicTIFFLE), bytes.HasPrefix(data, magicTIFFBE):
		return FormatTIFF, nil
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG, nil
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG, nil
	case bytes.HasPrefix(data, magicPSD):
		return FormatPSD, nil
	case bytes.HasPrefix(data, magicDOSEPS), bytes.HasPrefix(data, magicPS):
		return FormatEPS, nil
	}
	return "", ErrUnknownFormat
}
