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
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/ReFlexN/system-netd/pkg/netd"
)

var (
	queryUID   uint32
	queryNetID uint32
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask the daemon whether a uid may use a network",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := netd.QueryUserAccess(queryUID, queryNetID); err != nil {
			return fmt.Errorf("uid %d denied on network %d: %v", queryUID, queryNetID, err)
		}
		fmt.Printf("uid %d allowed on network %d\n", queryUID, queryNetID)
		return nil
	},
}

var checkNetID uint32

// checkCmd creates a probe socket, asks the daemon to mark it and reads the
// mark back, exercising the whole select/get path end to end.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a network can be selected by marking a probe socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		fd, err := netd.RawSocket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return fmt.Errorf("probe socket: %v", err)
		}
		defer unix.Close(fd)
		if err := netd.SetNetworkForSocket(checkNetID, fd); err != nil {
			return fmt.Errorf("select network %d: %v", checkNetID, err)
		}
		netID, err := netd.GetNetworkForSocket(fd)
		if err != nil {
			return fmt.Errorf("read mark back: %v", err)
		}
		fmt.Printf("probe socket marked with network %d\n", netID)
		return nil
	},
}

func init() {
	queryCmd.Flags().Uint32Var(&queryUID, "uid", 0, "User id to query")
	queryCmd.Flags().Uint32Var(&queryNetID, "netid", 0, "Network id to query")
	checkCmd.Flags().Uint32Var(&checkNetID, "netid", 0, "Network id to select")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(checkCmd)
}
