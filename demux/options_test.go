package demux

import "testing"

func TestIsNetworkURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url  string
		want bool
	}{
		{"/home/user/movie.mkv", false},
		{"movie.mp4", false},
		{"C:\\videos\\clip.avi", false},
		{"http://example.com/stream.m3u8", true},
		{"HTTPS://example.com/v.mp4", true},
		{"rtsp://cam.local/live", true},
		{"rtmp://edge/live/key", true},
		{"udp://239.0.0.1:1234", true},
		{"rtp://10.0.0.2:5004", true},
		{"mms://legacy/stream", true},
	}
	for _, tc := range cases {
		if got := IsNetworkURL(tc.url); got != tc.want {
			t.Errorf("IsNetworkURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestProtocolOptionsHTTP(t *testing.T) {
	t.Parallel()
	opts := protocolOptions("https://example.com/v.mp4")
	if opts["buffer_size"] != httpBufferSize {
		t.Errorf("http buffer_size = %s", opts["buffer_size"])
	}
	if opts["max_delay"] != "5000000" {
		t.Errorf("http max_delay = %s", opts["max_delay"])
	}
	if opts["reconnect"] != "1" || opts["reconnect_delay_max"] == "" {
		t.Error("network sources must reconnect with a capped delay")
	}
}

func TestProtocolOptionsRTSP(t *testing.T) {
	t.Parallel()
	opts := protocolOptions("rtsp://cam/live")
	if opts["rtsp_transport"] != "tcp" {
		t.Errorf("rtsp transport = %s, want tcp", opts["rtsp_transport"])
	}
	if opts["buffer_size"] != rtspBufferSize || opts["stimeout"] != "2000000" {
		t.Errorf("rtsp opts = %v", opts)
	}
}

func TestProtocolOptionsUDP(t *testing.T) {
	t.Parallel()
	opts := protocolOptions("udp://239.0.0.1:1234")
	if opts["buffer_size"] != udpBufferSize || opts["timeout"] != "1000000" {
		t.Errorf("udp opts = %v", opts)
	}
}

func TestProtocolOptionsLocal(t *testing.T) {
	t.Parallel()
	if opts := protocolOptions("/tmp/movie.mkv"); opts != nil {
		t.Errorf("local files take no protocol options, got %v", opts)
	}
}
