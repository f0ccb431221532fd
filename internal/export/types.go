package export

const FormatEDL = "edl"

type Request struct {
	Title     string  `json:"title"`
	FrameRate float64 `json:"frame_rate"`
	OutputDir string  `json:"output_dir"`
}

// ResolvedClip is one event of the merged sequence. StartMs and EndMs are
// source offsets inside the clip.
type ResolvedClip struct {
	ClipName string
	MediaID  string
	StartMs  int
	EndMs    int
}

type Result struct {
	Status          string   `json:"status"`
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	ClipCount       int      `json:"clip_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}
