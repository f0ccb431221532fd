// Package timeline sequences playback across an ordered list of video clips,
// honoring each clip's trim boundary, without producing a combined artifact.
package timeline

import (
	"github.com/heimdex/clipreel/internal/catalog"
)

// Clip is the part of a media item the sequencer needs. Positions and
// boundaries are seconds from the start of the clip.
type Clip struct {
	ID       string
	Duration *float64
	TrimEnd  *float64
}

// EffectiveEnd returns where playback of c stops. bounded is false when
// neither a trim boundary nor a duration is known, in which case the clip
// plays to its natural end. A trim boundary past a known duration is cut
// back to the duration.
func EffectiveEnd(c Clip) (end float64, bounded bool) {
	if c.TrimEnd != nil {
		if c.Duration != nil && *c.Duration < *c.TrimEnd {
			return *c.Duration, true
		}
		return *c.TrimEnd, true
	}
	if c.Duration != nil {
		return *c.Duration, true
	}
	return 0, false
}

// ShouldAdvance reports whether position has reached the boundary end.
func ShouldAdvance(position, end float64) bool {
	return position >= end
}

// Skippable reports whether c has nothing to play.
func Skippable(c Clip) bool {
	end, bounded := EffectiveEnd(c)
	return bounded && end <= 0
}

// ClipsFromMedia keeps the video items of a session in order. Photos are not
// part of merge playback.
func ClipsFromMedia(items []*catalog.MediaItem) []Clip {
	clips := make([]Clip, 0, len(items))
	for _, item := range items {
		if item.Type != catalog.MediaTypeVideo {
			continue
		}
		clips = append(clips, Clip{
			ID:       item.ID,
			Duration: item.Duration,
			TrimEnd:  item.TrimEndTime,
		})
	}
	return clips
}
