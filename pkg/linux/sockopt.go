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

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// GetSocketMark reads the SO_MARK value attached to fd.
func GetSocketMark(fd int) (uint32, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// SetSocketMark writes the SO_MARK value of fd. Requires CAP_NET_ADMIN.
func SetSocketMark(fd int, mark uint32) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(mark))
}

// SocketDomain queries the address family fd was created with.
func SocketDomain(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
}

// PeerCredentials returns the SO_PEERCRED identity of the process on the
// other end of a unix socket connection.
func PeerCredentials(conn *net.UnixConn) (*unix.Ucred, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "raw conn")
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, errors.Wrap(err, "control")
	}
	if credErr != nil {
		return nil, errors.Wrap(credErr, "SO_PEERCRED")
	}
	return cred, nil
}
