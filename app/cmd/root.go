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
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ReFlexN/system-netd/app/cmd/options"
	"github.com/ReFlexN/system-netd/config"
	"github.com/ReFlexN/system-netd/internal/fwmarkd"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netdctl",
	Short: "Apply per-socket network routing marks through a privileged fwmark daemon.",
	Long:  `Apply per-socket network routing marks through a privileged fwmark daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := options.NewOptions(); err != nil {
			return err
		}
		s := fwmarkd.NewServer(config.FwmarkSockPath, nil)
		if err := s.Start(); err != nil {
			log.Fatal(err)
			return err
		}
		if err := s.StartAdmin(config.AdminSockPath); err != nil {
			log.Fatal(err)
			return err
		}

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGUSR2)
		for {
			select {
			case sig := <-ch:
				if sig == syscall.SIGUSR2 {
					// Hand the listener to a restarting successor.
					if err := s.Handoff(config.HandoffSockPath); err != nil {
						log.Errorf("handoff failed: %v", err)
						continue
					}
					return nil
				}
				s.Stop()
				return nil
			case <-s.Done():
				return nil
			}
		}
	},
}

// Execute excute root command and its child commands
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Setup log format
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp:       false,
		FullTimestamp:          true,
		DisableLevelTruncation: true,
		DisableColors:          true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			fs := strings.Split(f.File, "/")
			filename := fs[len(fs)-1]
			ff := strings.Split(f.Function, "/")
			_f := ff[len(ff)-1]
			return fmt.Sprintf("%s()", _f), fmt.Sprintf("%s:%d", filename, f.Line)
		},
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(true)

	rootCmd.PersistentFlags().StringVar(&config.FwmarkSockPath, "fwmark-sock", config.DefaultFwmarkSockPath, "Daemon rendezvous unix socket path")
	rootCmd.PersistentFlags().StringVar(&config.AdminSockPath, "admin-sock", config.DefaultAdminSockPath, "Daemon status unix socket path")
	rootCmd.PersistentFlags().StringVar(&config.HandoffSockPath, "handoff-sock", config.DefaultHandoffSockPath, "Listener handoff unix socket path")
	rootCmd.PersistentFlags().BoolVarP(&config.Debug, "debug", "d", false, "Debug mode")
}
