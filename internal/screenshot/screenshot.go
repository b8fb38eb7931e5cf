// Package screenshot captures the docked composite to the clipboard.
package screenshot

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/session"
)

// Source is one window to include in the composite.
type Source struct {
	Role   session.Role
	Handle *session.Handle
}

// Result is a finished capture.
type Result struct {
	Image  *image.NRGBA
	PNG    []byte
	Bounds platform.Rect
	// Path is set when the image was also written to disk.
	Path string
	// ClipboardErr is set when the image could not be placed on the
	// clipboard.
	ClipboardErr error
}

// Compositor captures each window and composites them.
type Compositor struct {
	ws      platform.WindowSystem
	clip    Clipboard
	saveDir string
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a compositor. saveDir may be empty.
func New(ws platform.WindowSystem, clip Clipboard, saveDir string, now func() time.Time, logger *slog.Logger) *Compositor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{ws: ws, clip: clip, saveDir: saveDir, now: now, logger: logger}
}

type surface struct {
	bounds platform.Rect
	img    image.Image
}

// Capture composites the sources at their current positions. It fails with
// CaptureUnavailable unless docked is true and every window can be read.
// The composite goes to the clipboard; no session or layout state changes.
func (c *Compositor) Capture(docked bool, sources []Source) (*Result, error) {
	if !docked {
		return nil, fault.Newf(fault.CaptureUnavailable, "", "windows are not docked")
	}
	if len(sources) == 0 {
		return nil, fault.Newf(fault.CaptureUnavailable, "", "no windows to capture")
	}

	surfaces := make([]surface, 0, len(sources))
	var union platform.Rect
	for _, src := range sources {
		if src.Handle == nil {
			return nil, fault.Newf(fault.CaptureUnavailable, string(src.Role), "window not located")
		}
		var s surface
		err := src.Handle.Do(func(id platform.WindowID) error {
			ok, err := c.ws.Viewable(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("window %d is not viewable", id)
			}
			if s.bounds, err = c.ws.Geometry(id); err != nil {
				return err
			}
			s.img, err = c.ws.Capture(id)
			return err
		})
		if err != nil {
			return nil, fault.New(fault.CaptureUnavailable, string(src.Role), err)
		}
		surfaces = append(surfaces, s)
		union = union.Union(s.bounds)
	}

	canvas := composite(union, surfaces)
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	res := &Result{Image: canvas, PNG: buf.Bytes(), Bounds: union}

	if c.saveDir != "" {
		path, err := c.save(res.PNG)
		if err != nil {
			c.logger.Warn("failed to save screenshot", "dir", c.saveDir, "error", err)
		} else {
			res.Path = path
		}
	}

	if c.clip != nil {
		if err := c.clip.WriteImage(res.PNG); err != nil {
			res.ClipboardErr = err
			if res.Path != "" {
				if terr := c.clip.WriteText(res.Path); terr == nil {
					c.logger.Warn("image clipboard unavailable, copied file path instead", "error", err)
				}
			}
		}
	}

	c.logger.Info("screenshot captured",
		"width", union.Width, "height", union.Height,
		"size", humanize.Bytes(uint64(len(res.PNG))), "path", res.Path)
	return res, nil
}

// composite draws each surface onto a transparent canvas covering union,
// in order, honouring per-pixel alpha.
func composite(union platform.Rect, surfaces []surface) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, union.Width, union.Height))
	for _, s := range surfaces {
		at := image.Pt(s.bounds.X-union.X, s.bounds.Y-union.Y)
		dst := image.Rectangle{Min: at, Max: at.Add(s.img.Bounds().Size())}
		draw.Draw(canvas, dst, s.img, s.img.Bounds().Min, draw.Over)
	}
	return canvas
}

// FileName returns thordock-<stamp>-<hash prefix>.png for the encoded image.
func FileName(data []byte, at time.Time) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("thordock-%s-%s.png", at.Format("20060102-150405"), hex.EncodeToString(sum[:4]))
}

func (c *Compositor) save(data []byte) (string, error) {
	if err := os.MkdirAll(c.saveDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.saveDir, FileName(data, c.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
