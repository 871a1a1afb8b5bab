package extract

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/caselight/caselight-backend/internal/platform/qdrant"
)

// BM25-style term-frequency saturation. No corpus statistics are available
// at encode time, so the weight is the tf component only; fusion with the
// dense ranking happens index-side.
const (
	lexicalK1 = 1.2
)

// EncodeSparse hashes the text's terms into a sparse lexical vector for the
// hybrid index. Same text always yields the same indices and values, and
// indices come back sorted ascending with no duplicates.
func EncodeSparse(text string) qdrant.SparseVector {
	tf := map[uint32]float64{}
	for _, term := range tokenize(text) {
		tf[hashTerm(term)]++
	}
	if len(tf) == 0 {
		return qdrant.SparseVector{}
	}

	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		count := tf[idx]
		values[i] = float32(count * (lexicalK1 + 1) / (count + lexicalK1))
	}
	return qdrant.SparseVector{Indices: indices, Values: values}
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}
