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
	"fmt"

	"golang.org/x/sys/unix"
)

// CmdKind identifies a daemon command. The numeric values are part of the
// wire protocol and must not be reordered.
type CmdKind uint32

const (
	CmdOnAccept CmdKind = iota
	CmdOnConnect
	CmdOnConnectComplete
	CmdSelectNetwork
	CmdProtectFromVPN
	CmdSelectForUser
	CmdQueryUserAccess
)

func (k CmdKind) String() string {
	switch k {
	case CmdOnAccept:
		return "ON_ACCEPT"
	case CmdOnConnect:
		return "ON_CONNECT"
	case CmdOnConnectComplete:
		return "ON_CONNECT_COMPLETE"
	case CmdSelectNetwork:
		return "SELECT_NETWORK"
	case CmdProtectFromVPN:
		return "PROTECT_FROM_VPN"
	case CmdSelectForUser:
		return "SELECT_FOR_USER"
	case CmdQueryUserAccess:
		return "QUERY_USER_ACCESS"
	}
	return fmt.Sprintf("CmdKind(%d)", uint32(k))
}

const (
	// CommandLen is the fixed size of a serialized Command.
	CommandLen = 12
	// ConnectInfoLen is the fixed size of a serialized ConnectInfo.
	ConnectInfoLen = 8 + SizeofRawAddr
	// SizeofRawAddr matches a raw sockaddr_in6, the largest destination
	// address the protocol carries.
	SizeofRawAddr = 28
	// StatusLen is the size of the daemon's reply.
	StatusLen = 4
)

// Command is the single request record of the fwmark protocol. NetID and UID
// are interpreted per kind and ignored by the kinds that do not need them.
// A Command is built fresh per request and never mutated after construction.
type Command struct {
	Kind  CmdKind
	NetID uint32
	UID   uint32
}

// Marshal appends the 12-byte wire image of the command to b.
func (c Command) Marshal(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(c.Kind))
	b = binary.LittleEndian.AppendUint32(b, c.NetID)
	b = binary.LittleEndian.AppendUint32(b, c.UID)
	return b
}

// UnmarshalCommand decodes a command from the start of b.
func UnmarshalCommand(b []byte) (Command, error) {
	if len(b) < CommandLen {
		return Command{}, fmt.Errorf("short command: %d bytes", len(b))
	}
	return Command{
		Kind:  CmdKind(binary.LittleEndian.Uint32(b[0:4])),
		NetID: binary.LittleEndian.Uint32(b[4:8]),
		UID:   binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// ConnectInfo reports the outcome of a just-finished connect attempt. It is
// appended to ON_CONNECT_COMPLETE commands only. Outcome is 0 on success or
// the negated errno of the failed connect; Addr is a raw sockaddr image of
// the destination as the caller presented it.
type ConnectInfo struct {
	Outcome   int32
	LatencyMs uint32
	Addr      [SizeofRawAddr]byte
}

// NewConnectInfo captures an outcome, a latency and a destination address.
func NewConnectInfo(outcome int32, latencyMs uint32, sa unix.Sockaddr) ConnectInfo {
	return ConnectInfo{
		Outcome:   outcome,
		LatencyMs: latencyMs,
		Addr:      PackSockaddr(sa),
	}
}

// Marshal appends the 36-byte wire image of the connect info to b.
func (ci ConnectInfo) Marshal(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(ci.Outcome))
	b = binary.LittleEndian.AppendUint32(b, ci.LatencyMs)
	b = append(b, ci.Addr[:]...)
	return b
}

// UnmarshalConnectInfo decodes a connect info from the start of b.
func UnmarshalConnectInfo(b []byte) (ConnectInfo, error) {
	if len(b) < ConnectInfoLen {
		return ConnectInfo{}, fmt.Errorf("short connect info: %d bytes", len(b))
	}
	ci := ConnectInfo{
		Outcome:   int32(binary.LittleEndian.Uint32(b[0:4])),
		LatencyMs: binary.LittleEndian.Uint32(b[4:8]),
	}
	copy(ci.Addr[:], b[8:8+SizeofRawAddr])
	return ci, nil
}

// PackSockaddr lays sa out as the kernel would a sockaddr_in/sockaddr_in6:
// family in host order, port in network order. Unknown families produce an
// all-zero buffer, which decodes as AF_UNSPEC.
func PackSockaddr(sa unix.Sockaddr) (buf [SizeofRawAddr]byte) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		binary.LittleEndian.PutUint16(buf[0:2], unix.AF_INET)
		binary.BigEndian.PutUint16(buf[2:4], uint16(a.Port))
		copy(buf[4:8], a.Addr[:])
	case *unix.SockaddrInet6:
		binary.LittleEndian.PutUint16(buf[0:2], unix.AF_INET6)
		binary.BigEndian.PutUint16(buf[2:4], uint16(a.Port))
		copy(buf[8:24], a.Addr[:])
		binary.LittleEndian.PutUint32(buf[24:28], a.ZoneId)
	}
	return buf
}

// AddrFamily returns the address family stored in a packed sockaddr image.
func (ci ConnectInfo) AddrFamily() int {
	return int(binary.LittleEndian.Uint16(ci.Addr[0:2]))
}
