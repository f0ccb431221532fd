// Package export writes a session's merged review sequence as an edit
// decision list for external editors.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/clipreel/internal/timeline"
)

// ResolveClips turns the merged sequence into EDL events. Clips with an empty
// play range or no known length cannot be placed and are returned by id in
// unresolved.
func ResolveClips(clips []timeline.Clip) (resolved []ResolvedClip, unresolved []string) {
	unresolved = []string{}
	for i, seg := range timeline.BuildPlan(clips).Segments {
		if seg.Skipped || seg.Unbounded {
			unresolved = append(unresolved, seg.ClipID)
			continue
		}
		endMs := int(math.Round(seg.Length * 1000))
		if endMs <= 0 {
			unresolved = append(unresolved, seg.ClipID)
			continue
		}
		resolved = append(resolved, ResolvedClip{
			ClipName: fmt.Sprintf("Clip %d", i+1),
			MediaID:  seg.ClipID,
			StartMs:  0,
			EndMs:    endMs,
		})
	}
	return resolved, unresolved
}

func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	lines := []string{"TITLE: " + title}
	if isDropFrame(frameRate) {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordMs := 0
	for i, clip := range clips {
		lengthMs := clip.EndMs - clip.StartMs
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				timecode(clip.StartMs, fps), timecode(clip.EndMs, fps),
				timecode(recordMs, fps), timecode(recordMs+lengthMs, fps)),
			"* FROM CLIP NAME:  "+clip.ClipName,
			"* SOURCE MEDIA ID:  "+clip.MediaID,
		)
		recordMs += lengthMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes the EDL for clips into req.OutputDir and returns the file
// path. The file name is derived from the sanitized title.
func WriteEDL(req Request, clips []ResolvedClip) (string, error) {
	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return "", err
	}

	name := SanitizeName(req.Title, 80)
	if name == "" {
		name = "sequence"
	}
	path := filepath.Join(req.OutputDir, name+".edl")

	if err := os.WriteFile(path, []byte(GenerateEDL(clips, name, req.FrameRate)), 0644); err != nil {
		return "", fmt.Errorf("failed to write edl: %w", err)
	}
	return path, nil
}

func isDropFrame(frameRate float64) bool {
	return math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01
}

func timecode(ms int, fps int) string {
	frames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, frames%fps)
}
