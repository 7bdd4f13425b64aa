package phash

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// TransformMode выбирает способ вычисления 2D DCT
type TransformMode string

const (
	TransformDirectMode    TransformMode = "direct"    // O(N^4), эталон
	TransformSeparableMode TransformMode = "separable" // O(N^3), строки затем столбцы
)

// Valid проверяет, известен ли режим преобразования
func (m TransformMode) Valid() bool {
	return m == TransformDirectMode || m == TransformSeparableMode
}

func checkGrid(grid [][]float64, b *Basis) {
	if len(grid) != b.N {
		panic(fmt.Sprintf("phash: grid has %d rows, basis expects %d", len(grid), b.N))
	}
	for i, row := range grid {
		if len(row) != b.N {
			panic(fmt.Sprintf("phash: grid row %d has %d columns, basis expects %d", i, len(row), b.N))
		}
	}
}

func newCoefficients(n int) [][]float64 {
	out := make([][]float64, n)
	for u := range out {
		out[u] = make([]float64, n)
	}
	return out
}

// TransformDirect вычисляет коэффициенты прямым суммированием по всем (i, j)
// для каждой пары частот (u, v).
func TransformDirect(grid [][]float64, b *Basis) [][]float64 {
	checkGrid(grid, b)
	out := newCoefficients(b.N)
	for u := 0; u < b.N; u++ {
		directRow(grid, b, u, out[u])
	}
	return out
}

func directRow(grid [][]float64, b *Basis, u int, row []float64) {
	n := b.N
	for v := 0; v < n; v++ {
		var sum float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				sum += b.Cos[i][u] * b.Cos[j][v] * grid[i][j]
			}
		}
		row[v] = sum * (b.Scale[u] * b.Scale[v]) / 4
	}
}

// TransformSeparable дает те же коэффициенты, что и TransformDirect,
// с точностью до округления: сначала свертка по j, затем по i.
func TransformSeparable(grid [][]float64, b *Basis) [][]float64 {
	checkGrid(grid, b)
	partial := rowPass(grid, b)
	out := newCoefficients(b.N)
	for u := 0; u < b.N; u++ {
		columnRow(partial, b, u, out[u])
	}
	return out
}

// rowPass: partial[i][v] = sum_j Cos[j][v] * grid[i][j]
func rowPass(grid [][]float64, b *Basis) [][]float64 {
	n := b.N
	partial := newCoefficients(n)
	for i := 0; i < n; i++ {
		for v := 0; v < n; v++ {
			var sum float64
			for j := 0; j < n; j++ {
				sum += b.Cos[j][v] * grid[i][j]
			}
			partial[i][v] = sum
		}
	}
	return partial
}

func columnRow(partial [][]float64, b *Basis, u int, row []float64) {
	n := b.N
	for v := 0; v < n; v++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += b.Cos[i][u] * partial[i][v]
		}
		row[v] = sum * (b.Scale[u] * b.Scale[v]) / 4
	}
}

// TransformParallel распределяет строки выхода по горутинам.
// Порядок суммирования внутри строки тот же, поэтому результат совпадает
// с последовательной версией того же режима бит в бит.
func TransformParallel(grid [][]float64, b *Basis, mode TransformMode) [][]float64 {
	checkGrid(grid, b)
	if !mode.Valid() {
		panic(fmt.Sprintf("phash: unknown transform mode %q", mode))
	}
	out := newCoefficients(b.N)

	var partial [][]float64
	if mode == TransformSeparableMode {
		partial = rowPass(grid, b)
	}

	var g errgroup.Group
	for u := 0; u < b.N; u++ {
		u := u
		g.Go(func() error {
			if mode == TransformSeparableMode {
				columnRow(partial, b, u, out[u])
			} else {
				directRow(grid, b, u, out[u])
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Transform применяет выбранный режим
func Transform(grid [][]float64, b *Basis, mode TransformMode, parallel bool) [][]float64 {
	if parallel {
		return TransformParallel(grid, b, mode)
	}
	switch mode {
	case TransformDirectMode:
		return TransformDirect(grid, b)
	case TransformSeparableMode:
		return TransformSeparable(grid, b)
	default:
		panic(fmt.Sprintf("phash: unknown transform mode %q", mode))
	}
}
