// Package media готовит изображения к хешированию: определение формата,
// декодирование, EXIF ориентация, оттенки серого и растяжение до N×N.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/photocore/phashcore/internal/phash"
)

// Непрозрачное изображение дает три одинаковых канала на пиксель,
// с прозрачностью — серый, серый, серый и альфа. Под такие буферы
// определена legacy-адресация хеша.
const (
	opaqueChannels = 3
	alphaChannels  = 4
)

// DecodeError — изображение не удалось распознать или декодировать
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Preprocessor реализует phash.Preprocessor поверх imaging
type Preprocessor struct {
	filter imaging.ResampleFilter
}

var _ phash.Preprocessor = (*Preprocessor)(nil)

// NewPreprocessor создает препроцессор с фильтром Lanczos
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{filter: imaging.Lanczos}
}

// Preprocess декодирует байты и возвращает кадр size×size
func (p *Preprocessor) Preprocess(ctx context.Context, data []byte, size int) (*phash.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := p.Decode(data)
	if err != nil {
		return nil, err
	}

	return p.Normalize(img, size), nil
}

// Decode проверяет формат, декодирует и разворачивает изображение по EXIF
func (p *Preprocessor) Decode(data []byte) (image.Image, error) {
	info := DetectFormat(data)
	if !info.IsValid || !info.IsSupported {
		return nil, &DecodeError{Err: fmt.Errorf("%s", info.Error)}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	// Применяем ориентацию из EXIF
	if orientation := readOrientation(data); orientation > 1 {
		img = applyOrientation(img, orientation)
	}
	return img, nil
}

// Normalize переводит изображение в оттенки серого и растягивает до size×size без обрезки.
// Серый канал не умножается на альфу: полностью прозрачный пиксель сохраняет свой цвет.
func (p *Preprocessor) Normalize(img image.Image, size int) *phash.Frame {
	gray := imaging.Grayscale(img)
	if gray.Opaque() {
		resized := imaging.Resize(gray, size, size, p.filter)
		return frameFrom(resized, nil, size, opaqueChannels)
	}

	// imaging ресемплирует с premultiply, поэтому серый считаем по непрозрачной копии,
	// а альфу — по исходному изображению
	alpha := imaging.Resize(gray, size, size, p.filter)
	for i := 3; i < len(gray.Pix); i += 4 {
		gray.Pix[i] = 0xff
	}
	resized := imaging.Resize(gray, size, size, p.filter)
	return frameFrom(resized, alpha, size, alphaChannels)
}

func frameFrom(gray, alpha *image.NRGBA, size, channels int) *phash.Frame {
	pix := make([]byte, 0, size*size*channels)
	for y := 0; y < size; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+size*4]
		for x := 0; x < size; x++ {
			// NRGBA: после Grayscale R == G == B
			pix = append(pix, row[x*4], row[x*4+1], row[x*4+2])
			if alpha != nil {
				pix = append(pix, alpha.Pix[y*alpha.Stride+x*4+3])
			}
		}
	}

	return &phash.Frame{Size: size, Channels: channels, Pix: pix}
}
