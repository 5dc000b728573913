package problem

// TailTables holds the precomputed per-container tail-probability inputs
// consumed when the overflow Tree for that container is built (spec §4.2).
// For each tree node the overflow package picks one entry, from the node's
// reset history (the day and kind of the last visit or overflow on its
// branch):
//
//   - UStart:  probability of overflow on day 1 when nothing has reset the
//     container yet, starting from its initial load.
//   - UZero:   UZero[d] is read on day d when the container overflowed on
//     day d-1, i.e. starting from zero inventory.
//   - CStart:  CStart[d] is read on day d when the container was serviced
//     on day d-1, and on a branch with no reset at all once d > 1.
//   - CZero:   general case — CZero[day][gap] is read `gap` days after the
//     last reset (visit or overflow) on `day`.
//
// All four are carried on every container; the overflow package selects
// the applicable one per node rather than the Data model enforcing a single
// case up front, since which case applies can change as the Tracker
// schedules and removes visits across the horizon.
type TailTables struct {
	UStart float64
	UZero  []float64 // length Horizon+1

	CStart []float64 // length Horizon+1

	CZero [][]float64 // [serviceDay][gap], gap in [0, Horizon-serviceDay]
}

// NewTailTables allocates zero-valued tables sized for the given horizon.
func NewTailTables(horizon int) TailTables {
	czero := make([][]float64, horizon+1)
	for d := range czero {
		czero[d] = make([]float64, horizon+1-d)
	}
	return TailTables{
		UZero:  make([]float64, horizon+1),
		CStart: make([]float64, horizon+1),
		CZero:  czero,
	}
}
