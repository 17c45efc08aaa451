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

// Package netd lets a process tag its sockets with routing marks decided by
// the privileged fwmark daemon. It provides the hookable socket entry
// points, the process-wide network pins and the daemon-facing marking
// operations.
package netd

import (
	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/pkg/fwmark"
	"github.com/ReFlexN/system-netd/pkg/linux"
)

// SetNetworkForSocket asks the daemon to mark sockFD for netID.
func SetNetworkForSocket(netID uint32, sockFD int) error {
	return fwmark.StatusToError(setNetworkForSocket(netID, sockFD))
}

func setNetworkForSocket(netID uint32, sockFD int) int32 {
	if sockFD < 0 {
		return -int32(unix.EBADF)
	}
	cmd := fwmark.Command{Kind: fwmark.CmdSelectNetwork, NetID: netID}
	return fwmark.NewClient().Send(cmd, sockFD, nil)
}

// ProtectFromVpn exempts sockFD from default-route (VPN) override.
func ProtectFromVpn(sockFD int) error {
	if sockFD < 0 {
		return unix.EBADF
	}
	cmd := fwmark.Command{Kind: fwmark.CmdProtectFromVPN}
	return fwmark.StatusToError(fwmark.NewClient().Send(cmd, sockFD, nil))
}

// SetNetworkForUser marks sockFD on behalf of another user identity; the
// daemon decides whether the caller may do that.
func SetNetworkForUser(uid uint32, sockFD int) error {
	if sockFD < 0 {
		return unix.EBADF
	}
	cmd := fwmark.Command{Kind: fwmark.CmdSelectForUser, UID: uid}
	return fwmark.StatusToError(fwmark.NewClient().Send(cmd, sockFD, nil))
}

// QueryUserAccess asks whether uid may use netID. Pure policy question, so
// no descriptor accompanies the command.
func QueryUserAccess(uid uint32, netID uint32) error {
	cmd := fwmark.Command{Kind: fwmark.CmdQueryUserAccess, NetID: netID, UID: uid}
	return fwmark.StatusToError(fwmark.NewClient().Send(cmd, -1, nil))
}

// GetNetworkForSocket reads the network identifier off sockFD's mark
// directly, with no daemon round trip.
func GetNetworkForSocket(sockFD int) (uint32, error) {
	if sockFD < 0 {
		return 0, unix.EBADF
	}
	mark, err := linux.GetSocketMark(sockFD)
	if err != nil {
		return 0, err
	}
	return fwmark.MarkFromUint32(mark).NetID, nil
}
