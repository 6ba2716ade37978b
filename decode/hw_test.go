package decode

import (
	"testing"

	"github.com/zsiec/zenplay/config"
)

func TestExtraFramePoolSize(t *testing.T) {
	t.Parallel()

	// A 30-frame downstream queue needs ~12 frames of headroom.
	got := ExtraFramePoolSize(4, 4, 30)
	if got != 4+4+12 {
		t.Errorf("pool size = %d, want 20", got)
	}

	// Pipelines without a frame queue keep the floor of 6.
	got = ExtraFramePoolSize(2, 1, 0)
	if got != 2+1+6 {
		t.Errorf("queueless pool size = %d, want 9", got)
	}

	// The formula must be dynamic: deeper queues grow the pool.
	shallow := ExtraFramePoolSize(4, 4, 30)
	deep := ExtraFramePoolSize(4, 4, 60)
	if deep <= shallow {
		t.Errorf("pool must scale with queue depth: %d !> %d", deep, shallow)
	}

	// Unknown depths fall back to defaults rather than zero: a zero pool
	// forces dynamic allocation and multi-second startup latency.
	if got := ExtraFramePoolSize(0, 0, 0); got <= 0 {
		t.Errorf("pool size = %d, want positive", got)
	}
}

func TestCandidateNames(t *testing.T) {
	t.Parallel()
	all := config.RenderConfig{
		AllowD3D11VA:      true,
		AllowDXVA2:        true,
		AllowVAAPI:        true,
		AllowVideoToolbox: true,
	}

	cases := []struct {
		goos string
		want []string
	}{
		{"windows", []string{"d3d11va", "dxva2"}},
		{"darwin", []string{"videotoolbox"}},
		{"linux", []string{"vaapi"}},
	}
	for _, tc := range cases {
		got := CandidateNames(all, tc.goos)
		if len(got) != len(tc.want) {
			t.Errorf("%s: candidates = %v, want %v", tc.goos, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: candidates = %v, want %v", tc.goos, got, tc.want)
				break
			}
		}
	}

	// Permissions filter candidates.
	noD3D := all
	noD3D.AllowD3D11VA = false
	got := CandidateNames(noD3D, "windows")
	if len(got) != 1 || got[0] != "dxva2" {
		t.Errorf("windows without d3d11va = %v, want [dxva2]", got)
	}

	if got := CandidateNames(config.RenderConfig{}, "linux"); len(got) != 0 {
		t.Errorf("all-denied candidates = %v, want none", got)
	}
}
