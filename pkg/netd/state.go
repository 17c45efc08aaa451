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
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/pkg/fwmark"
)

// The two process-wide network slots. Pins are rare and reads are on the
// socket hot path, so plain atomic loads/stores suffice; a pin racing a
// concurrent socket creation may leave that one socket on the old default,
// which is accepted.
var (
	netIDForProcess atomic.Uint32
	netIDForResolv  atomic.Uint32
)

// NetworkForProcess returns the process-pinned network, NetIDUnset if none.
func NetworkForProcess() uint32 {
	return netIDForProcess.Load()
}

// NetworkForResolv resolves the network a resolver lookup should use:
// an explicit per-query netID wins, then the process pin, then the
// resolver pin.
func NetworkForResolv(netID uint32) uint32 {
	if netID != fwmark.NetIDUnset {
		return netID
	}
	if id := netIDForProcess.Load(); id != fwmark.NetIDUnset {
		return id
	}
	return netIDForResolv.Load()
}

// SetNetworkForProcess pins the default network for every socket this
// process creates. See setNetworkForTarget for the verification step.
func SetNetworkForProcess(netID uint32) error {
	return fwmark.StatusToError(setNetworkForTarget(netID, &netIDForProcess))
}

// SetNetworkForResolv pins the default network for resolver lookups only.
func SetNetworkForResolv(netID uint32) error {
	return fwmark.StatusToError(setNetworkForTarget(netID, &netIDForResolv))
}

// setNetworkForTarget commits netID into target. Unset always clears the
// slot. Any other netID is verified first by marking a throwaway probe
// socket, so an unauthorized pin fails loudly here instead of silently on
// every later socket. The probe bypasses the wrapped socket entry point;
// going through it would trigger a redundant daemon exchange.
func setNetworkForTarget(netID uint32, target *atomic.Uint32) int32 {
	if netID == fwmark.NetIDUnset {
		target.Store(netID)
		return 0
	}
	probe, err := originalSocket()(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -int32(errnoOf(err))
	}
	status := setNetworkForSocket(netID, probe)
	if status == 0 {
		target.Store(netID)
	}
	unix.Close(probe)
	return status
}
