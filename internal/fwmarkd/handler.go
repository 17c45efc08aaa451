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
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/config"
	"github.com/ReFlexN/system-netd/pkg/fwmark"
	"github.com/ReFlexN/system-netd/pkg/linux"
)

// handleConn serves exactly one command on conn and replies with a status.
// Any descriptor received alongside the command is ours to close.
func (s *Server) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	buf := make([]byte, fwmark.CommandLen+fwmark.ConnectInfoLen)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		log.Errorf("read command: %v", err)
		return
	}

	sockFD := -1
	if oobn > 0 {
		if sockFD, err = receivedFD(oob[:oobn]); err != nil {
			log.Errorf("parse ancillary data: %v", err)
			s.reply(conn, -int32(unix.EBADMSG))
			return
		}
		defer unix.Close(sockFD)
	}

	cmd, err := fwmark.UnmarshalCommand(buf[:n])
	if err != nil {
		s.reply(conn, -int32(unix.EBADMSG))
		return
	}
	if cmd.Kind == fwmark.CmdOnConnectComplete && n < fwmark.CommandLen+fwmark.ConnectInfoLen {
		// The payload rides the same stream; finish reading it.
		if _, err := io.ReadFull(conn, buf[n:fwmark.CommandLen+fwmark.ConnectInfoLen]); err != nil {
			s.reply(conn, -int32(unix.EBADMSG))
			return
		}
		n = fwmark.CommandLen + fwmark.ConnectInfoLen
	}

	cred, err := linux.PeerCredentials(conn)
	if err != nil {
		log.Errorf("peer credentials: %v", err)
		s.reply(conn, -int32(unix.EPERM))
		return
	}
	if config.Debug {
		log.Debugf("%s from %s (uid %d)", cmd.Kind, peerName(cred.Pid), cred.Uid)
	}

	s.count(cmd.Kind.String())
	s.reply(conn, s.dispatch(cmd, sockFD, buf[fwmark.CommandLen:n], cred))
}

func (s *Server) dispatch(cmd fwmark.Command, sockFD int, payload []byte, cred *unix.Ucred) int32 {
	switch cmd.Kind {
	case fwmark.CmdSelectNetwork:
		if sockFD < 0 {
			return -int32(unix.EBADF)
		}
		if cmd.NetID != fwmark.NetIDUnset && !s.allow(cred.Uid, cmd.NetID) {
			return -int32(unix.EPERM)
		}
		return applyNetworkMark(sockFD, cmd.NetID, true)

	case fwmark.CmdSelectForUser:
		// Marking on behalf of another identity is for privileged callers.
		if sockFD < 0 {
			return -int32(unix.EBADF)
		}
		if cred.Uid != 0 {
			return -int32(unix.EPERM)
		}
		if cmd.NetID != fwmark.NetIDUnset && !s.allow(cmd.UID, cmd.NetID) {
			return -int32(unix.EPERM)
		}
		return applyNetworkMark(sockFD, cmd.NetID, false)

	case fwmark.CmdProtectFromVPN:
		if sockFD < 0 {
			return -int32(unix.EBADF)
		}
		return setProtected(sockFD)

	case fwmark.CmdOnAccept, fwmark.CmdOnConnect:
		// Pre-authorization points. The reference daemon admits everything;
		// the command still needs its descriptor to be well-formed.
		if sockFD < 0 {
			return -int32(unix.EBADF)
		}
		return 0

	case fwmark.CmdOnConnectComplete:
		info, err := fwmark.UnmarshalConnectInfo(payload)
		if err != nil {
			return -int32(unix.EBADMSG)
		}
		log.Debugf("connect complete: family %d outcome %d latency %dms",
			info.AddrFamily(), info.Outcome, info.LatencyMs)
		return 0

	case fwmark.CmdQueryUserAccess:
		if !s.allow(cmd.UID, cmd.NetID) {
			return -int32(unix.EPERM)
		}
		return 0
	}
	return -int32(unix.EINVAL)
}

func (s *Server) reply(conn *net.UnixConn, status int32) {
	var b [fwmark.StatusLen]byte
	binary.LittleEndian.PutUint32(b[:], uint32(status))
	if _, err := conn.Write(b[:]); err != nil {
		log.Errorf("write status: %v", err)
	}
}

func receivedFD(oob []byte) (int, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, err
	}
	if len(scms) != 1 {
		return -1, errors.New("unexpected control message count")
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, err
	}
	if len(fds) != 1 {
		return -1, errors.New("unexpected descriptor count")
	}
	return fds[0], nil
}

// applyNetworkMark rewrites the netId sub-field of fd's mark, leaving the
// other flag bits alone.
func applyNetworkMark(fd int, netID uint32, explicit bool) int32 {
	cur, err := linux.GetSocketMark(fd)
	if err != nil {
		return errnoStatus(err)
	}
	m := fwmark.MarkFromUint32(cur)
	m.NetID = netID
	m.ExplicitlySelected = explicit && netID != fwmark.NetIDUnset
	if err := linux.SetSocketMark(fd, m.Uint32()); err != nil {
		return errnoStatus(err)
	}
	return 0
}

func setProtected(fd int) int32 {
	cur, err := linux.GetSocketMark(fd)
	if err != nil {
		return errnoStatus(err)
	}
	m := fwmark.MarkFromUint32(cur)
	m.ProtectedFromVPN = true
	if err := linux.SetSocketMark(fd, m.Uint32()); err != nil {
		return errnoStatus(err)
	}
	return 0
}

func errnoStatus(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(unix.EIO)
}

func peerName(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "unknown"
	}
	name, err := p.Name()
	if err != nil {
		return "unknown"
	}
	return name
}
