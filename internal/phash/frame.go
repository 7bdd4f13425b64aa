package phash

import (
	"context"
	"fmt"
)

// Frame — выход препроцессора: квадратный растр Size×Size,
// построчный, каналы чередуются (Channels байт на пиксель).
type Frame struct {
	Size     int
	Channels int
	Pix      []byte
}

// Preprocessor превращает байты изображения в нормализованный кадр заданного размера
type Preprocessor interface {
	Preprocess(ctx context.Context, data []byte, size int) (*Frame, error)
}

// Addressing определяет, как буфер кадра раскладывается в сетку пикселей
type Addressing string

const (
	// AddressingLegacy: pixel[x][y] = Pix[N*(y+x)]. Совместим с ранее сохраненными хешами.
	AddressingLegacy Addressing = "legacy"
	// AddressingRowMajor: pixel[x][y] = Pix[(x*N+y)*Channels].
	AddressingRowMajor Addressing = "row_major"
)

// Valid проверяет, известен ли режим адресации
func (a Addressing) Valid() bool {
	return a == AddressingLegacy || a == AddressingRowMajor
}

// GridFromFrame раскладывает кадр в сетку N×N.
// Кадр, которого не хватает для выбранной адресации, — ошибка программиста.
func GridFromFrame(f *Frame, addressing Addressing) [][]float64 {
	n := f.Size
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}

	var last int
	switch addressing {
	case AddressingLegacy:
		last = n * (2*n - 2)
	case AddressingRowMajor:
		last = (n*n - 1) * channels
	default:
		panic(fmt.Sprintf("phash: unknown addressing %q", addressing))
	}
	if n <= 0 || last >= len(f.Pix) {
		panic(fmt.Sprintf("phash: frame %dx%d with %d bytes is too small for %s addressing", n, n, len(f.Pix), addressing))
	}

	grid := make([][]float64, n)
	for x := 0; x < n; x++ {
		grid[x] = make([]float64, n)
		for y := 0; y < n; y++ {
			if addressing == AddressingLegacy {
				grid[x][y] = float64(f.Pix[n*(y+x)])
			} else {
				grid[x][y] = float64(f.Pix[(x*n+y)*channels])
			}
		}
	}
	return grid
}
