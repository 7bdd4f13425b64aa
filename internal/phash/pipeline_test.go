package phash_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocore/phashcore/internal/media"
	"github.com/photocore/phashcore/internal/phash"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func solidGray(v uint8) *image.NRGBA {
	return imaging.New(32, 32, color.NRGBA{R: v, G: v, B: v, A: 255})
}

func gradient() *image.NRGBA {
	img := imaging.New(64, 48, color.NRGBA{A: 255})
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*3 + y*2) % 256)
			img.Set(x, y, color.NRGBA{R: v, G: 255 - v, B: uint8(x * y % 256), A: 255})
		}
	}
	return img
}

func hashers() map[string]*phash.Hasher {
	pre := media.NewPreprocessor()
	return map[string]*phash.Hasher{
		"legacy":    phash.New(pre, phash.DefaultOptions()),
		"row_major": phash.New(pre, phash.Options{Addressing: phash.AddressingRowMajor}),
		"direct":    phash.New(pre, phash.Options{Transform: phash.TransformDirectMode, Parallel: true}),
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	data := pngBytes(t, gradient())
	ctx := context.Background()

	for name, h := range hashers() {
		t.Run(name, func(t *testing.T) {
			first, err := h.ComputeHash(ctx, data)
			require.NoError(t, err)
			second, err := h.ComputeHash(ctx, data)
			require.NoError(t, err)

			assert.Len(t, first, 64)
			assert.Equal(t, first, second)
			assert.Empty(t, strings.Trim(first, "01"))

			d, err := phash.HammingDistance(first, second)
			require.NoError(t, err)
			assert.Zero(t, d)
		})
	}
}

func TestSolidGrayWithInvertedCorner(t *testing.T) {
	ctx := context.Background()
	plain := solidGray(128)
	marked := solidGray(128)
	marked.Set(0, 0, color.NRGBA{R: 127, G: 127, B: 127, A: 255})

	for name, h := range hashers() {
		t.Run(name, func(t *testing.T) {
			result, err := h.Distance(ctx, pngBytes(t, plain), pngBytes(t, marked), false)
			require.NoError(t, err)
			assert.LessOrEqual(t, result.Distance, 4)
			assert.Equal(t, strings.Repeat("10101010"+"00000000", 4), result.Hashes.HashA)
		})
	}
}

func TestSolidGrayWithHighContrastCorner(t *testing.T) {
	ctx := context.Background()

	// Один пиксель из 1024 меняется на противоположный: расстояние заметно ниже
	// случайного (~32), но не обязательно в зоне высокого сходства
	for _, v := range []uint8{60, 200, 250} {
		plain := solidGray(v)
		marked := solidGray(v)
		marked.Set(0, 0, color.NRGBA{R: 255 - v, G: 255 - v, B: 255 - v, A: 255})

		for name, h := range hashers() {
			result, err := h.Distance(ctx, pngBytes(t, plain), pngBytes(t, marked), false)
			require.NoError(t, err)
			assert.Equal(t, strings.Repeat("10101010"+"00000000", 4), result.Hashes.HashA, "%s v=%d", name, v)
			assert.LessOrEqual(t, result.Distance, 12, "%s v=%d", name, v)
		}
	}
}

func TestDistanceHumanized(t *testing.T) {
	h := phash.New(media.NewPreprocessor(), phash.DefaultOptions())
	data := pngBytes(t, gradient())

	result, err := h.Distance(context.Background(), data, data, true)
	require.NoError(t, err)
	assert.Equal(t, phash.Identical, result.Similarity)
	assert.Equal(t, result.Hashes.HashA, result.Hashes.HashB)
}

func TestDecodeErrorSurfaces(t *testing.T) {
	h := phash.New(media.NewPreprocessor(), phash.DefaultOptions())
	_, err := h.Distance(context.Background(), pngBytes(t, gradient()), []byte("garbage"), true)

	var decodeErr *media.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}
