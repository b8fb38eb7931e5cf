package tui

import (
	"strings"

	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/session"
)

// renderLayoutPreview draws both windows of spec, scaled to fit a
// width x height character canvas framed by a double border.
func renderLayoutPreview(spec layout.Spec, bases layout.BaseSizes, width, height int) []string {
	if width < 8 || height < 5 {
		return emptyCanvas(width, height)
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	rects := layout.Compute(spec, bases)
	bounds := platform.Rect{}
	for _, r := range rects {
		bounds = bounds.Union(r)
	}
	// Leave the origin in view so negative offsets are visible.
	bounds = bounds.Union(platform.Rect{Width: 1, Height: 1})

	inner := platform.Rect{X: 1, Y: 1, Width: width - 2, Height: height - 2}
	labels := map[session.Role]string{session.RoleTop: "TOP", session.RoleBottom: "BOTTOM"}
	for _, role := range session.Roles {
		drawWindow(canvas, project(rects[role], bounds, inner), labels[role])
	}
	drawBorder(canvas, width, height)

	lines := make([]string, height)
	for i, row := range canvas {
		lines[i] = string(row)
	}
	return lines
}

// project maps r from the pixel space of bounds into the canvas area.
func project(r, bounds, area platform.Rect) platform.Rect {
	x1 := area.X + (r.X-bounds.X)*(area.Width-1)/bounds.Width
	y1 := area.Y + (r.Y-bounds.Y)*(area.Height-1)/bounds.Height
	x2 := area.X + (r.X+r.Width-bounds.X)*(area.Width-1)/bounds.Width
	y2 := area.Y + (r.Y+r.Height-bounds.Y)*(area.Height-1)/bounds.Height
	return platform.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func drawWindow(canvas [][]rune, r platform.Rect, label string) {
	x1, y1 := r.X, r.Y
	x2, y2 := r.X+r.Width, r.Y+r.Height
	// Need at least 2x2 for a window
	if x2 <= x1 || y2 <= y1 {
		return
	}

	for x := x1; x <= x2; x++ {
		canvas[y1][x] = '─'
		canvas[y2][x] = '─'
	}
	for y := y1; y <= y2; y++ {
		canvas[y][x1] = '│'
		canvas[y][x2] = '│'
	}
	canvas[y1][x1] = '┌'
	canvas[y1][x2] = '┐'
	canvas[y2][x1] = '└'
	canvas[y2][x2] = '┘'

	centerY := (y1 + y2) / 2
	startX := (x1+x2)/2 - len(label)/2
	if centerY <= y1 || centerY >= y2 {
		return
	}
	for i, ch := range label {
		if x := startX + i; x > x1 && x < x2 {
			canvas[centerY][x] = ch
		}
	}
}

func drawBorder(canvas [][]rune, width, height int) {
	for x := 0; x < width; x++ {
		canvas[0][x] = '═'
		canvas[height-1][x] = '═'
	}
	for y := 0; y < height; y++ {
		canvas[y][0] = '║'
		canvas[y][width-1] = '║'
	}
	canvas[0][0] = '╔'
	canvas[0][width-1] = '╗'
	canvas[height-1][0] = '╚'
	canvas[height-1][width-1] = '╝'
}

func emptyCanvas(width, height int) []string {
	lines := make([]string, max(height, 0))
	empty := strings.Repeat(" ", max(width, 0))
	for i := range lines {
		lines[i] = empty
	}
	return lines
}
