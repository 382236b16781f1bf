package archive

import (
	"fmt"
	"path/filepath"
)

// PathResolver maps a keyframe row to its on-disk JPEG path:
//
//	<root>/Keyframes_Lgg/Lgg_Vvvv/kkk.jpg
//
// with zero-padded group (2), video (3), and keyframe (3) numbers.
// The path is reported whether or not the file exists; existence is the
// HTTP layer's concern.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver rooted at the keyframe data directory.
func NewPathResolver(root string) *PathResolver {
	return &PathResolver{root: root}
}

// Resolve returns the path for a keyframe row. Deterministic, no I/O.
func (r *PathResolver) Resolve(kf Keyframe) string {
	return filepath.Join(
		r.root,
		fmt.Sprintf("Keyframes_L%02d", kf.GroupNum),
		fmt.Sprintf("L%02d_V%03d", kf.GroupNum, kf.VideoNum),
		fmt.Sprintf("%03d.jpg", kf.KeyframeNum),
	)
}
