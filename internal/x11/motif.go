package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xprop"
)

const motifHintsAtom = "_MOTIF_WM_HINTS"

// Motif hint flag bits.
const (
	MotifFlagFunctions   = 1 << 0
	MotifFlagDecorations = 1 << 1
)

// MotifHints mirrors the five 32-bit fields of _MOTIF_WM_HINTS.
type MotifHints struct {
	Flags      uint
	Functions  uint
	Decoration uint
	InputMode  uint
	Status     uint
}

// MotifHintsGet reads _MOTIF_WM_HINTS. ok is false when the window has no
// such property.
func (c *Connection) MotifHintsGet(id xproto.Window) (MotifHints, bool, error) {
	vals, err := xprop.PropValNums(xprop.GetProperty(c.XUtil, id, motifHintsAtom))
	if err != nil {
		// xprop reports a missing property as an error; tell it apart from
		// a vanished window by asking the server about the window itself.
		if _, gerr := xproto.GetGeometry(c.Conn(), xproto.Drawable(id)).Reply(); gerr != nil {
			return MotifHints{}, false, gerr
		}
		return MotifHints{}, false, nil
	}
	h := MotifHints{}
	fields := []*uint{&h.Flags, &h.Functions, &h.Decoration, &h.InputMode, &h.Status}
	for i := range fields {
		if i < len(vals) {
			*fields[i] = vals[i]
		}
	}
	return h, true, nil
}

// MotifHintsSet writes _MOTIF_WM_HINTS.
func (c *Connection) MotifHintsSet(id xproto.Window, h MotifHints) error {
	return xprop.ChangeProp32(c.XUtil, id, motifHintsAtom, motifHintsAtom,
		h.Flags, h.Functions, h.Decoration, h.InputMode, h.Status)
}

// MotifHintsDelete removes _MOTIF_WM_HINTS entirely.
func (c *Connection) MotifHintsDelete(id xproto.Window) error {
	atom, err := xprop.Atm(c.XUtil, motifHintsAtom)
	if err != nil {
		return err
	}
	return xproto.DeletePropertyChecked(c.Conn(), id, atom).Check()
}
