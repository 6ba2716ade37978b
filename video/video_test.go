package video

import (
	"testing"

	"github.com/zsiec/zenplay/config"
)

var thresholds = config.VideoSyncConfig{
	ThresholdLateMS:   5,
	ThresholdRepeatMS: 40,
	ThresholdDropMS:   120,
}

func TestDecide(t *testing.T) {
	t.Parallel()
	cases := []struct {
		delayMS int64
		want    action
	}{
		{200, actionWait},    // far in the future
		{6, actionWait},      // just over the late threshold
		{5, actionPresent},   // at the threshold: present
		{0, actionPresent},   // on time
		{-5, actionPresent},  // slightly late, within the repeat threshold
		{-40, actionPresent}, // at the repeat bound
		{-41, actionPresentLate},
		{-120, actionPresentLate}, // at the drop bound: still presented once
		{-121, actionDrop},
		{-1000, actionDrop},
	}
	for _, tc := range cases {
		if got := decide(tc.delayMS, thresholds); got != tc.want {
			t.Errorf("decide(%d) = %v, want %v", tc.delayMS, got, tc.want)
		}
	}
}

// The narrow band between drop and repeat presents exactly once; behavior
// must be stable across calls.
func TestDecideBandStable(t *testing.T) {
	t.Parallel()
	for i := 0; i < 3; i++ {
		if got := decide(-80, thresholds); got != actionPresentLate {
			t.Fatalf("call %d: decide(-80) = %v, want actionPresentLate", i, got)
		}
	}
}
