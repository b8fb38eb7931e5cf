package x11

import (
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/sys/unix"
)

// ServerInfo describes the connected X server.
type ServerInfo struct {
	Vendor   string
	Release  uint32
	XWayland bool
	Kernel   string
}

// Probe inspects the server vendor string, release number and extension
// list once. XWayland advertises the XWAYLAND extension.
func (c *Connection) Probe() ServerInfo {
	info := ServerInfo{}
	if setup := xproto.Setup(c.Conn()); setup != nil {
		info.Vendor = strings.TrimSpace(setup.Vendor)
		info.Release = setup.ReleaseNumber
	}

	const ext = "XWAYLAND"
	if reply, err := xproto.QueryExtension(c.Conn(), uint16(len(ext)), ext).Reply(); err == nil && reply.Present {
		info.XWayland = true
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.Kernel = unix.ByteSliceToString(uts.Release[:])
	}
	return info
}
