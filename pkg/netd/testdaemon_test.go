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
	"encoding/binary"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/config"
	"github.com/ReFlexN/system-netd/pkg/fwmark"
)

type daemonRequest struct {
	cmd     fwmark.Command
	payload []byte
	gotFD   bool
}

// testDaemon stands in for fwmarkd: it answers each command through the
// respond hook and records everything it saw. startTestDaemon also rebinds
// the configured daemon socket so package code under test reaches it.
type testDaemon struct {
	path    string
	respond func(cmd fwmark.Command) int32

	mu   sync.Mutex
	reqs []daemonRequest
}

func startTestDaemon(t *testing.T, respond func(cmd fwmark.Command) int32) *testDaemon {
	t.Helper()
	if respond == nil {
		respond = func(fwmark.Command) int32 { return 0 }
	}
	path := filepath.Join(t.TempDir(), "fwmarkd.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	prev := config.FwmarkSockPath
	config.FwmarkSockPath = path
	t.Cleanup(func() { config.FwmarkSockPath = prev })

	d := &testDaemon{path: path, respond: respond}
	go func() {
		for {
			conn, err := ln.AcceptUnix()
			if err != nil {
				return
			}
			d.handle(conn)
		}
	}()
	return d
}

func (d *testDaemon) handle(conn *net.UnixConn) {
	defer conn.Close()
	buf := make([]byte, fwmark.CommandLen+fwmark.ConnectInfoLen)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return
	}
	req := daemonRequest{}
	if oobn > 0 {
		if scms, err := unix.ParseSocketControlMessage(oob[:oobn]); err == nil && len(scms) == 1 {
			if fds, err := unix.ParseUnixRights(&scms[0]); err == nil {
				req.gotFD = len(fds) == 1
				for _, fd := range fds {
					unix.Close(fd)
				}
			}
		}
	}
	cmd, err := fwmark.UnmarshalCommand(buf[:n])
	if err != nil {
		return
	}
	req.cmd = cmd
	req.payload = append([]byte(nil), buf[fwmark.CommandLen:n]...)
	d.mu.Lock()
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()

	var reply [fwmark.StatusLen]byte
	binary.LittleEndian.PutUint32(reply[:], uint32(d.respond(cmd)))
	_, _ = conn.Write(reply[:])
}

func (d *testDaemon) requests() []daemonRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]daemonRequest(nil), d.reqs...)
}

// pointDaemonAtNowhere routes protocol traffic to a path nothing listens on,
// for tests that must prove no daemon contact happens.
func pointDaemonAtNowhere(t *testing.T) {
	t.Helper()
	prev := config.FwmarkSockPath
	config.FwmarkSockPath = filepath.Join(t.TempDir(), "unreachable.sock")
	t.Cleanup(func() { config.FwmarkSockPath = prev })
}

// resetNetdState restores the package globals a test mutates.
func resetNetdState(t *testing.T) {
	t.Helper()
	prevSet, prevReport := config.ShouldSetFwmark, config.ShouldReportConnectComplete
	t.Cleanup(func() {
		netIDForProcess.Store(fwmark.NetIDUnset)
		netIDForResolv.Store(fwmark.NetIDUnset)
		origSocket, origConnect, origAccept4 = nil, nil, nil
		config.ShouldSetFwmark, config.ShouldReportConnectComplete = prevSet, prevReport
	})
	netIDForProcess.Store(fwmark.NetIDUnset)
	netIDForResolv.Store(fwmark.NetIDUnset)
	origSocket, origConnect, origAccept4 = nil, nil, nil
}
