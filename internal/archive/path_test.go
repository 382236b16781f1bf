package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	r := NewPathResolver("/srv/keyframes")

	tests := []struct {
		name string
		kf   Keyframe
		want string
	}{
		{
			name: "small numbers are zero padded",
			kf:   Keyframe{Key: 1, GroupNum: 1, VideoNum: 2, KeyframeNum: 3},
			want: filepath.Join("/srv/keyframes", "Keyframes_L01", "L01_V002", "003.jpg"),
		},
		{
			name: "numbers at pad width",
			kf:   Keyframe{Key: 2, GroupNum: 21, VideoNum: 123, KeyframeNum: 456},
			want: filepath.Join("/srv/keyframes", "Keyframes_L21", "L21_V123", "456.jpg"),
		},
		{
			name: "keyframe number wider than pad",
			kf:   Keyframe{Key: 3, GroupNum: 5, VideoNum: 7, KeyframeNum: 1234},
			want: filepath.Join("/srv/keyframes", "Keyframes_L05", "L05_V007", "1234.jpg"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.kf))
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewPathResolver("/data")
	kf := Keyframe{Key: 9, GroupNum: 3, VideoNum: 14, KeyframeNum: 159}
	assert.Equal(t, r.Resolve(kf), r.Resolve(kf))
}
