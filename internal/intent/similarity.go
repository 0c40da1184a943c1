package intent

import "math"

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||). It returns 0
// for empty or mismatched vectors and for zero-magnitude inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// bestExample finds the example of def closest to the query embedding.
// It returns the similarity and the example text that produced it, or
// ok=false when the definition has no usable examples. Ties keep the
// first example in registration order.
func bestExample(queryVec []float32, def *Definition) (float64, string, bool) {
	n := len(def.Examples)
	if len(def.ExampleEmbeddings) < n {
		n = len(def.ExampleEmbeddings)
	}
	if n == 0 {
		return 0, "", false
	}

	best := math.Inf(-1)
	bestText := ""
	for i := 0; i < n; i++ {
		sim := CosineSimilarity(queryVec, def.ExampleEmbeddings[i])
		if sim > best {
			best = sim
			bestText = def.Examples[i]
		}
	}
	return best, bestText, true
}
