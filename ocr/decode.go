package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrEmptyImage = errors.New("empty image data")

// Decoder transforma bytes em imagem.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

type DecoderFunc func(data []byte) (image.Image, error)

func (f DecoderFunc) Decode(data []byte) (image.Image, error) { return f(data) }

// StdDecoder usa os formatos registrados em image: png, jpeg, gif, bmp, tiff e webp.
var StdDecoder Decoder = DecoderFunc(decodeImage)

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode %s image: %w", format, ErrEmptyImage)
	}
	return img, nil
}
