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
package linux

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSocketDomain(t *testing.T) {
	cases := []struct {
		name   string
		domain int
		typ    int
	}{
		{name: "inet", domain: unix.AF_INET, typ: unix.SOCK_DGRAM},
		{name: "inet6", domain: unix.AF_INET6, typ: unix.SOCK_DGRAM},
		{name: "unix", domain: unix.AF_UNIX, typ: unix.SOCK_STREAM},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fd, err := unix.Socket(c.domain, c.typ, 0)
			require.NoError(t, err)
			defer unix.Close(fd)

			got, err := SocketDomain(fd)
			require.NoError(t, err)
			assert.Equal(t, c.domain, got)
		})
	}
}

func TestGetSocketMarkDefaultsToZero(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	mark, err := GetSocketMark(fd)
	require.NoError(t, err)
	assert.Zero(t, mark)
}

func TestPeerCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan *unix.Ucred, 1)
	go func() {
		conn, err := ln.AcceptUnix()
		if err != nil {
			done <- nil
			return
		}
		defer conn.Close()
		cred, err := PeerCredentials(conn)
		if err != nil {
			done <- nil
			return
		}
		done <- cred
	}()

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	defer conn.Close()

	cred := <-done
	require.NotNil(t, cred)
	assert.Equal(t, uint32(os.Getuid()), cred.Uid)
	assert.Equal(t, int32(os.Getpid()), cred.Pid)
}
