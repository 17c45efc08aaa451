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
package fwmarkd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/pkg/fwmark"
)

func testSocket(t *testing.T) int {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func TestDispatchQueryUserAccess(t *testing.T) {
	s := NewServer("", func(uid, netID uint32) bool {
		return uid == 10061 && netID == 7
	})
	cred := &unix.Ucred{Uid: 0}

	cases := []struct {
		name string
		cmd  fwmark.Command
		want int32
	}{
		{
			name: "allowed",
			cmd:  fwmark.Command{Kind: fwmark.CmdQueryUserAccess, NetID: 7, UID: 10061},
			want: 0,
		},
		{
			name: "wrong network",
			cmd:  fwmark.Command{Kind: fwmark.CmdQueryUserAccess, NetID: 8, UID: 10061},
			want: -int32(unix.EPERM),
		},
		{
			name: "wrong uid",
			cmd:  fwmark.Command{Kind: fwmark.CmdQueryUserAccess, NetID: 7, UID: 10062},
			want: -int32(unix.EPERM),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, s.dispatch(c.cmd, -1, nil, cred))
		})
	}
}

func TestDispatchSelectNetworkDenied(t *testing.T) {
	s := NewServer("", func(uid, netID uint32) bool { return false })
	cmd := fwmark.Command{Kind: fwmark.CmdSelectNetwork, NetID: 7}
	got := s.dispatch(cmd, testSocket(t), nil, &unix.Ucred{Uid: 10061})
	assert.Equal(t, -int32(unix.EPERM), got)
}

func TestDispatchSelectNetworkNeedsDescriptor(t *testing.T) {
	s := NewServer("", nil)
	cmd := fwmark.Command{Kind: fwmark.CmdSelectNetwork, NetID: 7}
	assert.Equal(t, -int32(unix.EBADF), s.dispatch(cmd, -1, nil, &unix.Ucred{}))
}

func TestDispatchSelectForUserRequiresRoot(t *testing.T) {
	s := NewServer("", nil)
	cmd := fwmark.Command{Kind: fwmark.CmdSelectForUser, UID: 10061}
	got := s.dispatch(cmd, testSocket(t), nil, &unix.Ucred{Uid: 10061})
	assert.Equal(t, -int32(unix.EPERM), got)
}

func TestDispatchNotifications(t *testing.T) {
	s := NewServer("", nil)
	cred := &unix.Ucred{Uid: 10061}

	assert.Equal(t, -int32(unix.EBADF), s.dispatch(fwmark.Command{Kind: fwmark.CmdOnConnect}, -1, nil, cred))
	assert.Equal(t, int32(0), s.dispatch(fwmark.Command{Kind: fwmark.CmdOnConnect}, testSocket(t), nil, cred))
	assert.Equal(t, int32(0), s.dispatch(fwmark.Command{Kind: fwmark.CmdOnAccept}, testSocket(t), nil, cred))
}

func TestDispatchConnectComplete(t *testing.T) {
	s := NewServer("", nil)
	cred := &unix.Ucred{Uid: 10061}
	info := fwmark.NewConnectInfo(0, 3, &unix.SockaddrInet4{Port: 443, Addr: [4]byte{192, 0, 2, 7}})

	cmd := fwmark.Command{Kind: fwmark.CmdOnConnectComplete}
	assert.Equal(t, int32(0), s.dispatch(cmd, -1, info.Marshal(nil), cred))
	assert.Equal(t, -int32(unix.EBADMSG), s.dispatch(cmd, -1, []byte{1, 2, 3}, cred))
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := NewServer("", nil)
	cmd := fwmark.Command{Kind: fwmark.CmdKind(99)}
	assert.Equal(t, -int32(unix.EINVAL), s.dispatch(cmd, -1, nil, &unix.Ucred{}))
}
