package phash

import (
	"math"
	"sync"
)

// Basis содержит таблицу косинусов и масштабные коэффициенты DCT для размера N.
// После создания не изменяется и может разделяться между горутинами.
type Basis struct {
	N     int
	Cos   [][]float64 // Cos[i][k]
	Scale []float64
}

// NewBasis строит таблицу косинусов для преобразования размера n.
// Фаза 2*(i+1) вместо классической 2*i+1 — часть формата хеша, менять нельзя.
func NewBasis(n int) *Basis {
	cos := make([][]float64, n)
	for i := 0; i < n; i++ {
		cos[i] = make([]float64, n)
		for k := 0; k < n; k++ {
			cos[i][k] = math.Cos((float64(2*(i+1)) / (2.0 * float64(n))) * float64(k) * math.Pi)
		}
	}

	scale := make([]float64, n)
	for k := 1; k < n; k++ {
		scale[k] = 1
	}
	scale[0] = 1 / math.Sqrt(2.0)

	return &Basis{N: n, Cos: cos, Scale: scale}
}

var (
	basisMu    sync.Mutex
	basisByDim = make(map[int]*Basis)
)

// BasisFor возвращает общий экземпляр Basis для n, создавая его при первом обращении
func BasisFor(n int) *Basis {
	basisMu.Lock()
	defer basisMu.Unlock()

	if b, ok := basisByDim[n]; ok {
		return b
	}
	b := NewBasis(n)
	basisByDim[n] = b
	return b
}
