package demux

import "strings"

// Per-scheme protocol options, expressed as plain maps so they can be built
// and inspected without touching cgo. Values follow the ffmpeg option names.
const (
	httpBufferSize = "10485760" // 10 MiB
	rtspBufferSize = "5242880"  // 5 MiB
	udpBufferSize  = "1048576"  // 1 MiB
)

var networkSchemes = []string{
	"http://", "https://", "rtsp://", "rtmp://", "udp://", "rtp://", "mms://", "srt://",
}

// IsNetworkURL reports whether the URL names a networked source rather than a
// local file.
func IsNetworkURL(url string) bool {
	lower := strings.ToLower(url)
	for _, s := range networkSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// protocolOptions returns the input options applied for the URL's scheme.
// Network sources always get reconnect with a capped retry delay.
func protocolOptions(url string) map[string]string {
	if !IsNetworkURL(url) {
		return nil
	}

	opts := map[string]string{
		"reconnect":           "1",
		"reconnect_streamed":  "1",
		"reconnect_delay_max": "5",
	}

	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		opts["buffer_size"] = httpBufferSize
		opts["max_delay"] = "5000000" // 5 s

	case strings.HasPrefix(lower, "rtsp://"):
		opts["rtsp_transport"] = "tcp"
		opts["rtsp_flags"] = "prefer_tcp"
		opts["buffer_size"] = rtspBufferSize
		opts["stimeout"] = "2000000" // 2 s

	case strings.HasPrefix(lower, "rtmp://"):
		opts["buffer_size"] = rtspBufferSize
		opts["rw_timeout"] = "2000000" // 2 s

	case strings.HasPrefix(lower, "udp://"), strings.HasPrefix(lower, "rtp://"):
		opts["buffer_size"] = udpBufferSize
		opts["timeout"] = "1000000" // 1 s
	}
	return opts
}
