package speculative

// Adjustment records one change of the speculative window size.
type Adjustment struct {
	From    int
	To      int
	Average float64
}

// Window adapts the speculative window size k from the rolling acceptance
// ratio accepted/k. Every AdjustEvery observations the average is compared
// with the thresholds, k moves by one within [MinK, MaxK], and the
// accumulator resets.
type Window struct {
	k     int
	minK  int
	maxK  int
	low   float64
	high  float64
	every int
	sum   float64
	count int
}

// NewWindow builds a controller from a validated config.
func NewWindow(cfg Config) *Window {
	return &Window{
		k:     cfg.InitialK,
		minK:  cfg.MinK,
		maxK:  cfg.MaxK,
		low:   cfg.LowThreshold,
		high:  cfg.HighThreshold,
		every: cfg.AdjustEvery,
	}
}

// K is the current window size.
func (w *Window) K() int { return w.k }

// Average is the mean acceptance ratio observed since the last adjustment
// point, or zero when nothing has been observed.
func (w *Window) Average() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// Step is the window for the next iteration: never more than the remaining
// budget and never less than one.
func (w *Window) Step(remaining int) int {
	return max(1, min(w.k, remaining))
}

// Observe records one iteration's acceptance. It reports an Adjustment when
// k changed.
func (w *Window) Observe(accepted, k int) (Adjustment, bool) {
	if k <= 0 {
		return Adjustment{}, false
	}
	w.sum += float64(accepted) / float64(k)
	w.count++
	if w.count < w.every {
		return Adjustment{}, false
	}
	avg := w.sum / float64(w.count)
	w.sum = 0
	w.count = 0

	adj := Adjustment{From: w.k, To: w.k, Average: avg}
	switch {
	case avg > w.high && w.k < w.maxK:
		w.k++
	case avg < w.low && w.k > w.minK:
		w.k--
	default:
		return adj, false
	}
	adj.To = w.k
	return adj, true
}
