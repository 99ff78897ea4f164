package occupancy

// Debouncer smooths per-space presence with an N-of-M vote: a space flips
// only when at least required of the last window observations disagree with
// its current value. Fewer observations than window count as they are.
type Debouncer struct {
	window   int
	required int
	history  [][]bool // ring buffer per space
	next     []int
	filled   []int
	current  []bool
}

// NewDebouncer returns a debouncer for n spaces, or nil when window <= 1
// (no smoothing). required is clamped to [1, window].
func NewDebouncer(n, window, required int) *Debouncer {
	if window <= 1 {
		return nil
	}
	required = max(1, min(required, window))
	d := &Debouncer{
		window:   window,
		required: required,
		history:  make([][]bool, n),
		next:     make([]int, n),
		filled:   make([]int, n),
		current:  make([]bool, n),
	}
	for i := range d.history {
		d.history[i] = make([]bool, window)
	}
	return d
}

// Prime sets the current value of each space without recording history,
// for example after restoring checkpointed occupancies.
func (d *Debouncer) Prime(current []bool) {
	if d == nil {
		return
	}
	copy(d.current, current)
}

// Apply records raw and returns the smoothed presence. A nil Debouncer
// returns raw unchanged.
func (d *Debouncer) Apply(raw []bool) []bool {
	if d == nil {
		return raw
	}
	out := make([]bool, len(raw))
	for i, present := range raw {
		d.history[i][d.next[i]] = present
		d.next[i] = (d.next[i] + 1) % d.window
		if d.filled[i] < d.window {
			d.filled[i]++
		}

		votes := 0
		for k := 0; k < d.filled[i]; k++ {
			if d.history[i][k] != d.current[i] {
				votes++
			}
		}
		if votes >= d.required {
			d.current[i] = !d.current[i]
		}
		out[i] = d.current[i]
	}
	return out
}
