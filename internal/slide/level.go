package slide

// Level is one resolution in a slide's pyramid. Width and Height are
// floating point because a clipped (bounds-limited) rectangle can have a
// sub-pixel width after scaling. Levels are ordered by decreasing width;
// level 0 is full resolution.
type Level struct {
	Width, Height float64
	Downsample    float64
}

// bestLevelForDownsample returns the index of the level whose own
// downsample is the largest that does not exceed ds, i.e. the highest-
// resolution level still coarse enough to satisfy the request. levels must
// be ordered by increasing Downsample (level 0 first).
func bestLevelForDownsample(levels []Level, ds float64) int {
	best := 0
	for i, l := range levels {
		if l.Downsample <= ds {
			best = i
		} else {
			break
		}
	}
	return best
}
