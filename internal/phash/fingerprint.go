package phash

import (
	"fmt"
	"strings"
)

// Extract строит отпечаток по окну низких частот (1..low, 1..low).
// DC-коэффициент и нулевые строка/столбец не участвуют.
// Бит равен 1, только если коэффициент строго больше среднего по окну.
func Extract(coeffs [][]float64, low int) string {
	if low <= 0 || len(coeffs) < low+1 {
		panic(fmt.Sprintf("phash: window %d does not fit into %d coefficients", low, len(coeffs)))
	}

	var sum float64
	for x := 0; x < low; x++ {
		for y := 0; y < low; y++ {
			sum += coeffs[x+1][y+1]
		}
	}
	mean := sum / float64(low*low)

	var hash strings.Builder
	hash.Grow(low * low)
	for x := 0; x < low; x++ {
		for y := 0; y < low; y++ {
			if coeffs[x+1][y+1] > mean {
				hash.WriteByte('1')
			} else {
				hash.WriteByte('0')
			}
		}
	}
	return hash.String()
}
