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
package fwmark

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/config"
)

// Client performs one request/response exchange with the fwmark daemon per
// Send call. A fresh connection is dialed every time; there is no pooling,
// no retry and no timeout beyond what the transport itself imposes.
type Client struct {
	sockPath string
}

// NewClient returns a client targeting the configured daemon socket.
func NewClient() *Client {
	return &Client{sockPath: config.FwmarkSockPath}
}

// NewClientWithPath returns a client targeting an explicit daemon socket.
func NewClientWithPath(path string) *Client {
	return &Client{sockPath: path}
}

// Send transmits cmd (and info, when non-nil) as a single message and reads
// back the daemon's status. When sockFD is non-negative the descriptor rides
// the same message as SCM_RIGHTS ancillary data, so the daemon receives its
// own duplicate referring to the caller's socket. Returns 0 on success or a
// negated errno; the connection is closed on every path.
func (c *Client) Send(cmd Command, sockFD int, info *ConnectInfo) int32 {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: c.sockPath, Net: "unix"})
	if err != nil {
		return errnoStatus(err, unix.ECONNREFUSED)
	}
	defer conn.Close()

	payload := cmd.Marshal(make([]byte, 0, CommandLen+ConnectInfoLen))
	if info != nil {
		payload = info.Marshal(payload)
	}
	var oob []byte
	if sockFD >= 0 {
		oob = unix.UnixRights(sockFD)
	}
	if _, _, err := conn.WriteMsgUnix(payload, oob, nil); err != nil {
		return errnoStatus(err, unix.ECOMM)
	}

	var reply [StatusLen]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return errnoStatus(err, unix.EPROTO)
	}
	return int32(binary.LittleEndian.Uint32(reply[:]))
}

// errnoStatus turns a transport error into a negated errno, falling back to
// a fixed code when the error carries no errno of its own.
func errnoStatus(err error, fallback syscall.Errno) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(fallback)
}

// StatusToError maps a daemon status to the Go error convention: nil for 0,
// otherwise the errno the negative status encodes.
func StatusToError(status int32) error {
	if status == 0 {
		return nil
	}
	return syscall.Errno(-status)
}
