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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		mark Mark
	}{
		{
			name: "unset",
			mark: Mark{NetID: NetIDUnset},
		},
		{
			name: "netid only",
			mark: Mark{NetID: 105},
		},
		{
			name: "explicitly selected",
			mark: Mark{NetID: 105, ExplicitlySelected: true},
		},
		{
			name: "protected",
			mark: Mark{NetID: 7, ProtectedFromVPN: true},
		},
		{
			name: "all bits",
			mark: Mark{NetID: 0xffff, ExplicitlySelected: true, ProtectedFromVPN: true},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.mark, MarkFromUint32(c.mark.Uint32()))
		})
	}
}

func TestMarkFieldsDoNotOverlap(t *testing.T) {
	m := Mark{NetID: 0xffff}
	assert.Equal(t, uint32(0xffff), m.Uint32())

	flags := Mark{ExplicitlySelected: true, ProtectedFromVPN: true}
	assert.Equal(t, NetIDUnset, MarkFromUint32(flags.Uint32()).NetID)
	assert.Zero(t, flags.Uint32()&0xffff)
}
