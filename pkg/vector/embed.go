package vector

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

// DefaultDim is the embedding width used by the CLI.
const DefaultDim = 256

var english = stopwords.MustGet("en")

// Embed maps text to a unit-length feature-hashed bag of words. Tokens are
// lowercased runs of letters and digits, minus English stopwords. Text
// without tokens embeds to the zero vector.
func Embed(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if english.Contains(tok) {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// The top bit picks the sign so collisions tend to cancel.
		if sum&(1<<31) != 0 {
			vec[sum%uint32(dim)] -= 1
		} else {
			vec[sum%uint32(dim)] += 1
		}
	}

	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// cosine returns the cosine similarity of a and b.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / math.Sqrt(na*nb))
}
