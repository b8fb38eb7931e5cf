package supervisor

import (
	"math"
	"strconv"
)

// LaunchOptions are the per-display arguments given to the mirroring binary.
type LaunchOptions struct {
	Serial       string
	DisplayID    string
	Title        string
	MaxFPS       int
	RenderDriver string
	WindowWidth  int
	BitrateMbps  int
	Audio        bool
	Extra        []string
}

// Args renders the command line, without the binary itself.
func (o LaunchOptions) Args() []string {
	args := []string{
		"-s", o.Serial,
		"--window-borderless",
		"--max-fps", strconv.Itoa(o.MaxFPS),
		"--render-driver", o.RenderDriver,
		"--mouse-bind=++++",
		"--display-id", o.DisplayID,
		"--window-title", o.Title,
		"--window-width", strconv.Itoa(o.WindowWidth),
		"--video-bit-rate", strconv.Itoa(o.BitrateMbps) + "M",
	}
	if !o.Audio {
		args = append(args, "--no-audio")
	}
	return append(args, o.Extra...)
}

// Bitrate returns max(minimum, floor(k * scale^1.5)) in Mbps.
func Bitrate(minimum, k int, scale float64) int {
	return max(minimum, int(float64(k)*math.Pow(scale, 1.5)))
}
