package embedding

import "math"

func hasNonFinite(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}
