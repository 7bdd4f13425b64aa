// Package phash вычисляет перцептивный хеш изображения на основе 2D DCT
// и сравнивает хеши по расстоянию Хэмминга.
//
// Конвейер: байты -> Preprocessor -> Frame -> сетка пикселей -> DCT -> окно
// низких частот -> строка из '0' и '1' длиной LowSize².
// Хеши сравнимы только при одинаковых Size, LowSize и адресации (см. Options.Signature).
package phash

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultSize    = 32
	DefaultLowSize = 8
)

// Options задает параметры формата хеша и способ вычисления
type Options struct {
	Size       int
	LowSize    int
	Addressing Addressing
	Transform  TransformMode
	Parallel   bool
}

// DefaultOptions возвращает параметры, совместимые с сохраненными хешами
func DefaultOptions() Options {
	return Options{
		Size:       DefaultSize,
		LowSize:    DefaultLowSize,
		Addressing: AddressingLegacy,
		Transform:  TransformSeparableMode,
	}
}

func (o *Options) setDefaults() {
	if o.Size == 0 {
		o.Size = DefaultSize
	}
	if o.LowSize == 0 {
		o.LowSize = DefaultLowSize
	}
	if o.Addressing == "" {
		o.Addressing = AddressingLegacy
	}
	if o.Transform == "" {
		o.Transform = TransformSeparableMode
	}
}

// Validate проверяет согласованность параметров
func (o Options) Validate() error {
	if o.Size <= 1 {
		return fmt.Errorf("hash size must be greater than 1, got %d", o.Size)
	}
	if o.LowSize <= 0 || o.LowSize+1 > o.Size {
		return fmt.Errorf("low size %d does not fit into transform size %d", o.LowSize, o.Size)
	}
	if !o.Addressing.Valid() {
		return fmt.Errorf("unknown addressing %q", o.Addressing)
	}
	if !o.Transform.Valid() {
		return fmt.Errorf("unknown transform %q", o.Transform)
	}
	return nil
}

// Signature идентифицирует формат хеша. Режим преобразования не входит:
// direct и separable дают одинаковые хеши.
func (o Options) Signature() string {
	return fmt.Sprintf("dct-%d-%d-%s", o.Size, o.LowSize, o.Addressing)
}

// Hasher вычисляет отпечатки. Безопасен для конкурентного использования.
type Hasher struct {
	pre   Preprocessor
	opts  Options
	basis *Basis
}

// New создает Hasher. Некорректные параметры — ошибка программиста.
func New(pre Preprocessor, opts Options) *Hasher {
	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		panic("phash: " + err.Error())
	}
	return &Hasher{
		pre:   pre,
		opts:  opts,
		basis: BasisFor(opts.Size),
	}
}

// Options возвращает параметры хешера
func (h *Hasher) Options() Options {
	return h.opts
}

// ComputeHash вычисляет хеш изображения. Ошибки препроцессора возвращаются как есть.
func (h *Hasher) ComputeHash(ctx context.Context, data []byte) (string, error) {
	frame, err := h.pre.Preprocess(ctx, data, h.opts.Size)
	if err != nil {
		return "", err
	}
	return h.HashFrame(frame), nil
}

// HashFrame вычисляет хеш уже подготовленного кадра
func (h *Hasher) HashFrame(frame *Frame) string {
	if frame.Size != h.opts.Size {
		panic(fmt.Sprintf("phash: frame size %d, hasher expects %d", frame.Size, h.opts.Size))
	}
	grid := GridFromFrame(frame, h.opts.Addressing)
	coeffs := Transform(grid, h.basis, h.opts.Transform, h.opts.Parallel)
	return Extract(coeffs, h.opts.LowSize)
}

// Distance хеширует оба изображения параллельно и сравнивает хеши
func (h *Hasher) Distance(ctx context.Context, imageA, imageB []byte, humanize bool) (*DistanceResult, error) {
	var hashA, hashB string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hashA, err = h.ComputeHash(gctx, imageA)
		return err
	})
	g.Go(func() error {
		var err error
		hashB, err = h.ComputeHash(gctx, imageB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewDistanceResult(hashA, hashB, humanize)
}
