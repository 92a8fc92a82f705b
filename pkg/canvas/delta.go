package canvas

// ComputeDeltas returns every cell where grid differs from the session's snapshot and
// advances the snapshot to match, so a change is reported at most once. The scan is y-outer,
// x-inner. The caller must hold the canvas lock for the whole call.
//
// The cost is O(width*height) per call regardless of how much changed.
func ComputeDeltas(grid *Grid, s *Session) []Delta {
	deltas := make([]Delta, 0)
	for y := 0; y < grid.height; y++ {
		for x := 0; x < grid.width; x++ {
			current := *grid.at(x, y)
			seen := s.lastSeen.at(x, y)
			if current != *seen {
				deltas = append(deltas, Delta{X: x, Y: y, Cell: current})
				*seen = current
			}
		}
	}
	return deltas
}
