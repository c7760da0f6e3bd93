package controller

// selectPrimary reduces the candidate list to the single element the user
// most plausibly cares about. Candidates that have actually started
// playing (isLikelyMainPlayer) out-rank everything else; within the pool,
// the largest rendered area wins. Candidates arrive in document order, so
// an exact area tie keeps the first-seen element — a stable, deterministic
// rule for simultaneously discovered twins.
func selectPrimary(candidates []*trackedVideo) *trackedVideo {
	if len(candidates) == 0 {
		return nil
	}

	pool := candidates[:0:0]
	for _, t := range candidates {
		if isLikelyMainPlayer(t.node) {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	var best *trackedVideo
	bestArea := -1.0
	for _, t := range pool {
		box, ok := t.node.Box()
		if !ok {
			continue
		}
		if area := box.Area(); area > bestArea {
			best, bestArea = t, area
		}
	}
	return best
}
