// Package layout turns offsets and a scale into window geometry and keeps
// the docked windows in sync with the latest requested layout.
package layout

import (
	"fmt"
	"math"

	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/session"
)

const (
	MinScale     = 0.3
	MaxScale     = 1.0
	DefaultScale = 0.6

	// maxOffset bounds offsets to something a screen could show.
	maxOffset = 16384
)

// Spec is a requested layout: per-window offsets inside the container and
// one scale applied to both windows' sizes, never to the offsets.
type Spec struct {
	TX    int     `json:"tx" yaml:"tx"`
	TY    int     `json:"ty" yaml:"ty"`
	BX    int     `json:"bx" yaml:"bx"`
	BY    int     `json:"by" yaml:"by"`
	Scale float64 `json:"scale" yaml:"scale"`
}

// Validate checks the scale range and offset magnitudes.
func (s Spec) Validate() error {
	if math.IsNaN(s.Scale) || s.Scale < MinScale || s.Scale > MaxScale {
		return fmt.Errorf("scale %.2f out of range [%.1f, %.1f]", s.Scale, MinScale, MaxScale)
	}
	for _, v := range []int{s.TX, s.TY, s.BX, s.BY} {
		if v < -maxOffset || v > maxOffset {
			return fmt.Errorf("offset %d out of range", v)
		}
	}
	return nil
}

// Offset returns the offset of one role's window.
func (s Spec) Offset(role session.Role) platform.Point {
	if role == session.RoleBottom {
		return platform.Point{X: s.BX, Y: s.BY}
	}
	return platform.Point{X: s.TX, Y: s.TY}
}

// WithOffsets returns s with new offsets and the same scale.
func (s Spec) WithOffsets(tx, ty, bx, by int) Spec {
	s.TX, s.TY, s.BX, s.BY = tx, ty, bx, by
	return s
}

func (s Spec) String() string {
	return fmt.Sprintf("top(%d,%d) bottom(%d,%d) scale %.2f", s.TX, s.TY, s.BX, s.BY, s.Scale)
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Scaled returns round(size * scale), never smaller than one pixel.
func (z Size) Scaled(scale float64) Size {
	return Size{
		Width:  max(1, int(math.Round(float64(z.Width)*scale))),
		Height: max(1, int(math.Round(float64(z.Height)*scale))),
	}
}

// BaseSizes are the unscaled render sizes of each window.
type BaseSizes map[session.Role]Size

// DefaultBaseSizes returns the top screen at 1920x1080 and the bottom screen
// derived from its physical size relative to the top (1083x943).
func DefaultBaseSizes() BaseSizes {
	pxPerInch := 1920 / 5.23
	return BaseSizes{
		session.RoleTop: {Width: 1920, Height: 1080},
		session.RoleBottom: {
			Width:  int(math.Round(2.95 * pxPerInch)),
			Height: int(math.Round(2.57 * pxPerInch)),
		},
	}
}

// Compute returns each window's rectangle relative to the container.
func Compute(spec Spec, bases BaseSizes) map[session.Role]platform.Rect {
	out := make(map[session.Role]platform.Rect, len(session.Roles))
	for _, role := range session.Roles {
		off := spec.Offset(role)
		size := bases[role].Scaled(spec.Scale)
		out[role] = platform.Rect{X: off.X, Y: off.Y, Width: size.Width, Height: size.Height}
	}
	return out
}

// ContainerSize returns the size needed to show every window, measured
// from the container's own origin.
func ContainerSize(rects map[session.Role]platform.Rect) Size {
	var w, h int
	for _, r := range rects {
		w = max(w, r.X+r.Width)
		h = max(h, r.Y+r.Height)
	}
	return Size{Width: max(w, 1), Height: max(h, 1)}
}

// DefaultSpec places the top window at the origin and centres the bottom
// window directly beneath it.
func DefaultSpec(scale float64, bases BaseSizes) Spec {
	top := bases[session.RoleTop].Scaled(scale)
	bottom := bases[session.RoleBottom].Scaled(scale)
	return Spec{
		TX:    0,
		TY:    0,
		BX:    top.Width/2 - bottom.Width/2,
		BY:    top.Height,
		Scale: scale,
	}
}
