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

// Package fwmark defines the socket mark layout and the request/response
// protocol spoken with the fwmark daemon over its unix socket.
package fwmark

// NetIDUnset means no network has been selected.
const NetIDUnset uint32 = 0

const (
	netIDMask             = 0xffff
	explicitlySelectedBit = 1 << 16
	protectedFromVPNBit   = 1 << 17
)

// Mark is the decoded form of the integer routing mark attached to a socket
// via SO_MARK. The network identifier occupies the low 16 bits, flags the
// bits above; the two sub-fields never overlap.
type Mark struct {
	NetID              uint32
	ExplicitlySelected bool
	ProtectedFromVPN   bool
}

// Uint32 packs the mark into its on-socket integer form.
func (m Mark) Uint32() uint32 {
	v := m.NetID & netIDMask
	if m.ExplicitlySelected {
		v |= explicitlySelectedBit
	}
	if m.ProtectedFromVPN {
		v |= protectedFromVPNBit
	}
	return v
}

// MarkFromUint32 decodes an on-socket mark value.
func MarkFromUint32(v uint32) Mark {
	return Mark{
		NetID:              v & netIDMask,
		ExplicitlySelected: v&explicitlySelectedBit != 0,
		ProtectedFromVPN:   v&protectedFromVPNBit != 0,
	}
}
