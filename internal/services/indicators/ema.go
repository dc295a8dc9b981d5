package indicators

// EMA computes the recursive exponential moving average of values.
// The first output equals the first input; each next value is
// prev + alpha*(v-prev) with alpha = 2/(span+1). It returns nil for empty input.
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span < 1 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)

	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// Sub returns a[i]-b[i] over the common length.
func Sub(a, b []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] - b[i]
	}
	return out
}

// StrictlyIncreasing reports whether the last window+1 values rise at every step.
// With fewer than window+1 values it is false.
func StrictlyIncreasing(values []float64, window int) bool {
	if window < 1 || len(values) < window+1 {
		return false
	}
	tail := values[len(values)-window-1:]
	for i := 1; i < len(tail); i++ {
		if !(tail[i] > tail[i-1]) {
			return false
		}
	}
	return true
}

// ArgMin returns the index of the first minimum in values[from:to].
func ArgMin(values []float64, from, to int) int {
	best := from
	for i := from + 1; i < to; i++ {
		if values[i] < values[best] {
			best = i
		}
	}
	return best
}

// ArgMax returns the index of the first maximum in values[from:to].
func ArgMax(values []float64, from, to int) int {
	best := from
	for i := from + 1; i < to; i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
