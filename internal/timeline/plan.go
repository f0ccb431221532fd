package timeline

// Segment places one clip on the merged time axis.
type Segment struct {
	ClipID string  `json:"clip_id"`
	Index  int     `json:"index"`
	Offset float64 `json:"offset"`
	Length float64 `json:"length"`
	// Skipped clips have an empty play range and are never loaded.
	Skipped bool `json:"skipped,omitempty"`
	// Unbounded clips play to their natural end, whose length is unknown.
	Unbounded bool `json:"unbounded,omitempty"`
}

// Plan is the merged sequence laid out on one continuous axis. When any clip
// is unbounded, Total and every later Offset are lower bounds.
type Plan struct {
	Segments  []Segment `json:"segments"`
	Total     float64   `json:"total"`
	Unbounded bool      `json:"unbounded"`
}

func BuildPlan(clips []Clip) Plan {
	plan := Plan{Segments: make([]Segment, 0, len(clips))}

	for i, c := range clips {
		seg := Segment{ClipID: c.ID, Index: i, Offset: plan.Total}
		end, bounded := EffectiveEnd(c)
		switch {
		case !bounded:
			seg.Unbounded = true
			plan.Unbounded = true
		case end <= 0:
			seg.Skipped = true
		default:
			seg.Length = end
		}
		plan.Total += seg.Length
		plan.Segments = append(plan.Segments, seg)
	}
	return plan
}

// Playable returns the segments that will actually be loaded.
func (p Plan) Playable() []Segment {
	var out []Segment
	for _, seg := range p.Segments {
		if !seg.Skipped {
			out = append(out, seg)
		}
	}
	return out
}
