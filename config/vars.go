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
package config

import "golang.org/x/sys/unix"

const (
	// DefaultFwmarkSockPath is the daemon's well-known rendezvous socket.
	DefaultFwmarkSockPath = "/var/run/fwmarkd.sock"
	// DefaultAdminSockPath serves the daemon's status endpoint.
	DefaultAdminSockPath = "/var/run/fwmarkd-admin.sock"
	// DefaultHandoffSockPath transfers the daemon listener across restarts.
	DefaultHandoffSockPath = "/var/run/fwmarkd-handoff.sock"
)

var (
	FwmarkSockPath  = DefaultFwmarkSockPath
	AdminSockPath   = DefaultAdminSockPath
	HandoffSockPath = DefaultHandoffSockPath
	Debug           = false
)

// Which address families get fwmarks applied and which additionally report
// connect completion is routing policy, not mechanism, so both stay
// injectable. The defaults cover the IP families.
var (
	ShouldSetFwmark = func(family int) bool {
		return family == unix.AF_INET || family == unix.AF_INET6
	}
	ShouldReportConnectComplete = func(family int) bool {
		return family == unix.AF_INET || family == unix.AF_INET6
	}
)
