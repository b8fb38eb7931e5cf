package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
)

// CaptureWindow reads the window's pixels with GetImage in ZPixmap format.
// 32-bit visuals keep their alpha channel; 24-bit windows come back opaque.
func (c *Connection) CaptureWindow(id xproto.Window) (*image.NRGBA, error) {
	geom, err := xproto.GetGeometry(c.Conn(), xproto.Drawable(id)).Reply()
	if err != nil {
		return nil, err
	}
	w, h := int(geom.Width), int(geom.Height)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("window %d has empty geometry", id)
	}

	reply, err := xproto.GetImage(c.Conn(), xproto.ImageFormatZPixmap, xproto.Drawable(id),
		0, 0, uint16(w), uint16(h), 0xffffffff).Reply()
	if err != nil {
		return nil, err
	}
	return decodeZPixmap(reply.Data, w, h, reply.Depth)
}

// decodeZPixmap converts 32 bits-per-pixel BGRX/BGRA scanlines into NRGBA.
func decodeZPixmap(data []byte, w, h int, depth byte) (*image.NRGBA, error) {
	if h == 0 || len(data) < w*h*4 {
		return nil, fmt.Errorf("unsupported image data: %d bytes for %dx%d depth %d", len(data), w, h, depth)
	}
	stride := len(data) / h
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			b, g, r, a := row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]
			if depth != 32 {
				a = 0xff
			} else if a != 0 && a != 0xff {
				// ARGB visuals store premultiplied color.
				r = byte(min(255, int(r)*255/int(a)))
				g = byte(min(255, int(g)*255/int(a)))
				b = byte(min(255, int(b)*255/int(a)))
			}
			dst[x*4], dst[x*4+1], dst[x*4+2], dst[x*4+3] = r, g, b, a
		}
	}
	return img, nil
}
