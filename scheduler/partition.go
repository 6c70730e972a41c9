package scheduler

import "time"

// Partition splits the columns of a preview into n horizontal bands of about
// equal render time and returns the width of each band as a fraction of the
// whole. The fractions are non-negative and sum to 1.
//
// Columns are accumulated greedily until their time reaches total/n; the last
// band takes whatever is left. When no more columns remain than open bands,
// every remaining band takes a single column (and bands beyond the last
// column get nothing).
func Partition(timings []time.Duration, n int) []float64 {
	n = max(n, 1)
	cols := len(timings)
	fractions := make([]float64, n)

	var total time.Duration
	for _, t := range timings {
		total += max(t, 0)
	}
	if cols == 0 || total == 0 {
		spread(fractions, 0, 0, cols)
		return fractions
	}

	target := float64(total) / float64(n)
	band, consumed, pending := 0, 0, 0
	acc := 0.0

	for i := 0; i < cols && band < n-1; i++ {
		if n-band >= cols-consumed {
			for ; band < n && consumed < cols; band++ {
				fractions[band] = 1 / float64(cols)
				consumed++
			}
			return fractions
		}

		acc += float64(max(timings[i], 0))
		pending++
		if acc >= target {
			fractions[band] = float64(pending) / float64(cols)
			consumed += pending
			band++
			acc, pending = 0, 0
		}
	}

	if band == n-1 {
		fractions[band] = float64(cols-consumed) / float64(cols)
		return fractions
	}

	// out of columns with several bands still open: share the rest by columns
	spread(fractions, band, consumed, cols)
	return fractions
}

// spread divides the columns [consumed, cols) as evenly as possible over the
// bands fractions[from:]. With no columns at all the bands split evenly.
func spread(fractions []float64, from, consumed, cols int) {
	bands := len(fractions) - from
	if cols == 0 {
		for i := from; i < len(fractions); i++ {
			fractions[i] = 1 / float64(bands)
		}
		return
	}

	rest := cols - consumed
	for i := range bands {
		share := rest / bands
		if i < rest%bands {
			share++
		}
		fractions[from+i] = float64(share) / float64(cols)
	}
}
