/*
Copyright © 2023 SystemNetd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package netd

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/config"
	"github.com/ReFlexN/system-netd/pkg/fwmark"
	"github.com/ReFlexN/system-netd/pkg/linux"
)

// Hookable socket entry points. An integration layer hands its call slots to
// the Init functions below; each slot is rewritten to the wrapped version
// while the original is captured into the registry.
type (
	SocketFunc      func(domain, typ, proto int) (int, error)
	ConnectFunc     func(fd int, sa unix.Sockaddr) error
	Accept4Func     func(fd int, flags int) (int, unix.Sockaddr, error)
	ResolvNetIDFunc func(netID uint32) uint32
)

// The captured originals. Each is written at most once, during installation,
// before any wrapped call can run, so later reads need no synchronization.
var (
	origSocket  SocketFunc
	origConnect ConnectFunc
	origAccept4 Accept4Func
)

// RawSocket, RawConnect and RawAccept4 are the unhooked defaults, used when
// no integration layer installed its own originals.

func RawSocket(domain, typ, proto int) (int, error) {
	return unix.Socket(domain, typ, proto)
}

func RawConnect(fd int, sa unix.Sockaddr) error {
	return unix.Connect(fd, sa)
}

func RawAccept4(fd int, flags int) (int, unix.Sockaddr, error) {
	return unix.Accept4(fd, flags)
}

// InitSocket installs the socket hook. The slot must currently hold the
// original entry point; an empty slot, or an already populated registry,
// makes this a no-op.
func InitSocket(fn *SocketFunc) {
	if fn == nil || *fn == nil || origSocket != nil {
		return
	}
	origSocket = *fn
	*fn = Socket
}

// InitConnect installs the connect hook.
func InitConnect(fn *ConnectFunc) {
	if fn == nil || *fn == nil || origConnect != nil {
		return
	}
	origConnect = *fn
	*fn = Connect
}

// InitAccept4 installs the accept4 hook.
func InitAccept4(fn *Accept4Func) {
	if fn == nil || *fn == nil || origAccept4 != nil {
		return
	}
	origAccept4 = *fn
	*fn = Accept4
}

// InitNetIDForResolv fills an empty resolver slot with the lookup-network
// query; unlike the others this replaces the slot outright, there is no
// original to wrap.
func InitNetIDForResolv(fn *ResolvNetIDFunc) {
	if fn == nil {
		return
	}
	*fn = NetworkForResolv
}

func originalSocket() SocketFunc {
	if origSocket != nil {
		return origSocket
	}
	return RawSocket
}

func originalConnect() ConnectFunc {
	if origConnect != nil {
		return origConnect
	}
	return RawConnect
}

func originalAccept4() Accept4Func {
	if origAccept4 != nil {
		return origAccept4
	}
	return RawAccept4
}

// Socket is the wrapped socket entry point. On success, if the process has a
// pinned network and the domain takes fwmarks, the new socket is marked; a
// marking failure closes the socket and surfaces the daemon's errno, so an
// unmarked descriptor never escapes.
func Socket(domain, typ, proto int) (int, error) {
	fd, err := originalSocket()(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	netID := netIDForProcess.Load()
	if netID != fwmark.NetIDUnset && config.ShouldSetFwmark(domain) {
		if status := setNetworkForSocket(netID, fd); status != 0 {
			return -1, closeAndErrno(fd, status)
		}
	}
	return fd, nil
}

// Connect is the wrapped connect entry point. Destinations in marked
// families are announced to the daemon before connecting; a rejection aborts
// the call without ever touching the network. After the real connect, the
// completion report is fire-and-forget telemetry: its status is discarded
// and the real connect's error is what the caller sees.
func Connect(fd int, sa unix.Sockaddr) error {
	family := sockaddrFamily(sa)
	shouldMark := fd >= 0 && sa != nil && config.ShouldSetFwmark(family)
	if shouldMark {
		cmd := fwmark.Command{Kind: fwmark.CmdOnConnect}
		if status := fwmark.NewClient().Send(cmd, fd, nil); status != 0 {
			return syscall.Errno(-status)
		}
	}

	// Latency excludes the daemon exchanges on purpose.
	start := time.Now()
	connectErr := originalConnect()(fd, sa)

	if shouldMark && config.ShouldReportConnectComplete(family) {
		outcome := int32(0)
		if connectErr != nil {
			outcome = -int32(errnoOf(connectErr))
		}
		info := fwmark.NewConnectInfo(outcome, uint32(time.Since(start).Milliseconds()), sa)
		cmd := fwmark.Command{Kind: fwmark.CmdOnConnectComplete}
		_ = fwmark.NewClient().Send(cmd, fd, &info)
	}
	return connectErr
}

// Accept4 is the wrapped accept4 entry point. Inbound sockets in marked
// families are announced so the daemon can mark them for reply routing; a
// rejection closes the accepted socket before it reaches the caller.
func Accept4(fd int, flags int) (int, unix.Sockaddr, error) {
	nfd, sa, err := originalAccept4()(fd, flags)
	if err != nil {
		return -1, nil, err
	}
	var family int
	if sa != nil {
		family = sockaddrFamily(sa)
	} else {
		family, err = linux.SocketDomain(nfd)
		if err != nil {
			return -1, nil, closeAndErrno(nfd, -int32(errnoOf(err)))
		}
	}
	if config.ShouldSetFwmark(family) {
		cmd := fwmark.Command{Kind: fwmark.CmdOnAccept}
		if status := fwmark.NewClient().Send(cmd, nfd, nil); status != 0 {
			return -1, nil, closeAndErrno(nfd, status)
		}
	}
	return nfd, sa, nil
}

func sockaddrFamily(sa unix.Sockaddr) int {
	switch sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET
	case *unix.SockaddrInet6:
		return unix.AF_INET6
	case *unix.SockaddrUnix:
		return unix.AF_UNIX
	case nil:
		return unix.AF_UNSPEC
	}
	return unix.AF_UNSPEC
}

func closeAndErrno(fd int, status int32) error {
	unix.Close(fd)
	return syscall.Errno(-status)
}

func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}
