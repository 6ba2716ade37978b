package audio

import "testing"

func TestQueueCapacityExceedsFirstCallbackDemand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		bufferMS int
		minimum  int
	}{
		{1000, 150}, // 1s device buffer ~= 43 frames; 3-4x margin
		{500, 64},
		{200, 64},
		{50, 64},
	}
	for _, tc := range cases {
		got := queueCapacity(tc.bufferMS)
		if got < tc.minimum {
			t.Errorf("queueCapacity(%d) = %d, want >= %d", tc.bufferMS, got, tc.minimum)
		}
		firstDemand := tc.bufferMS/nominalFrameMS + 1
		if got < firstDemand*3 {
			t.Errorf("queueCapacity(%d) = %d, below 3x first-callback demand %d", tc.bufferMS, got, firstDemand*3)
		}
	}
}

func TestOutputSpecByteRate(t *testing.T) {
	t.Parallel()
	s := OutputSpec{SampleRate: 44100, Channels: 2}
	if got := s.BytesPerSecond(); got != 176400 {
		t.Errorf("BytesPerSecond = %d, want 176400", got)
	}
}
