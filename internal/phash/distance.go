package phash

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrLengthMismatch возвращается при сравнении хешей разной длины
var ErrLengthMismatch = errors.New("hash lengths do not match")

// ErrInvalidHash — строка не является хешем из '0' и '1'
var ErrInvalidHash = errors.New("hash must consist of '0' and '1'")

// ValidateHash проверяет внешний хеш перед сравнением
func ValidateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: empty hash", ErrInvalidHash)
	}
	for i := 0; i < len(hash); i++ {
		if hash[i] != '0' && hash[i] != '1' {
			return fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidHash, hash[i], i)
		}
	}
	return nil
}

// CompareHashes проверяет оба хеша и сравнивает их
func CompareHashes(hashA, hashB string, humanize bool) (*DistanceResult, error) {
	if err := ValidateHash(hashA); err != nil {
		return nil, err
	}
	if err := ValidateHash(hashB); err != nil {
		return nil, err
	}
	return NewDistanceResult(hashA, hashB, humanize)
}

// HammingDistance считает число позиций, в которых хеши различаются
func HammingDistance(hashA, hashB string) (int, error) {
	if len(hashA) != len(hashB) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(hashA), len(hashB))
	}

	distance := 0
	for i := 0; i < len(hashA); i++ {
		if hashA[i] != hashB[i] {
			distance++
		}
	}
	return distance, nil
}

// Similarity — качественная оценка расстояния
type Similarity string

const (
	Identical           Similarity = "identical"
	HighSimilarity      Similarity = "high similarity"
	LowSimilarity       Similarity = "low similarity"
	CompletelyDifferent Similarity = "completely different"
)

// Humanize переводит расстояние в категорию.
// Ровно 5 и ровно 10 попадают в CompletelyDifferent: границы открытые с обеих сторон.
func Humanize(distance int) Similarity {
	switch {
	case distance == 0:
		return Identical
	case distance > 0 && distance < 5:
		return HighSimilarity
	case distance > 5 && distance < 10:
		return LowSimilarity
	default:
		return CompletelyDifferent
	}
}

// Hashes хранит исходные хеши сравнения
type Hashes struct {
	HashA string `json:"hashA"`
	HashB string `json:"hashB"`
}

// DistanceResult — результат сравнения двух изображений
type DistanceResult struct {
	Distance   int
	Humanized  bool
	Similarity Similarity
	Hashes     Hashes
}

// NewDistanceResult считает расстояние между хешами и, если нужно, категорию
func NewDistanceResult(hashA, hashB string, humanize bool) (*DistanceResult, error) {
	d, err := HammingDistance(hashA, hashB)
	if err != nil {
		return nil, err
	}

	result := &DistanceResult{
		Distance:  d,
		Humanized: humanize,
		Hashes:    Hashes{HashA: hashA, HashB: hashB},
	}
	if humanize {
		result.Similarity = Humanize(d)
	}
	return result, nil
}

// MarshalJSON кодирует distance числом, а при humanize — названием категории
func (r DistanceResult) MarshalJSON() ([]byte, error) {
	var distance interface{} = r.Distance
	if r.Humanized {
		distance = r.Similarity
	}
	return json.Marshal(struct {
		Distance interface{} `json:"distance"`
		Hashes   Hashes      `json:"hashes"`
	}{
		Distance: distance,
		Hashes:   r.Hashes,
	})
}
