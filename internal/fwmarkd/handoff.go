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
	"net"
	"os"

	passfd "github.com/ftrvxmtrx/fd"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ReFlexN/system-netd/config"
)

// takeoverListener collects the rendezvous listener a retiring daemon is
// offering on the handoff socket. Returns nil when there is no predecessor.
func takeoverListener(handoffPath string) *net.UnixListener {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: handoffPath, Net: "unix"})
	if err != nil {
		return nil
	}
	defer conn.Close()
	files, err := passfd.Get(conn, 1, []string{"fwmark-listener"})
	if err != nil {
		log.Errorf("receive listener: %v", err)
		return nil
	}
	f := files[0]
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		log.Errorf("rebuild listener: %v", err)
		return nil
	}
	ul, ok := ln.(*net.UnixListener)
	if !ok {
		ln.Close()
		log.Errorf("handed-off listener is %T, not unix", ln)
		return nil
	}
	return ul
}

// Handoff parks the rendezvous listener on the handoff socket until a
// successor collects it, then stops serving. The socket file stays in place
// for the successor's duplicate.
func (s *Server) Handoff(handoffPath string) error {
	if handoffPath == "" {
		handoffPath = config.HandoffSockPath
	}
	if err := os.RemoveAll(handoffPath); err != nil {
		return pkgerrors.Wrap(err, handoffPath)
	}
	hl, err := net.ListenUnix("unix", &net.UnixAddr{Name: handoffPath, Net: "unix"})
	if err != nil {
		return pkgerrors.Wrap(err, "handoff listen")
	}
	defer hl.Close()

	log.Infof("waiting for successor on %s", handoffPath)
	conn, err := hl.AcceptUnix()
	if err != nil {
		return pkgerrors.Wrap(err, "handoff accept")
	}
	defer conn.Close()

	f, err := s.ln.File()
	if err != nil {
		return pkgerrors.Wrap(err, "listener file")
	}
	defer f.Close()
	if err := passfd.Put(conn, f); err != nil {
		return pkgerrors.Wrap(err, "pass listener")
	}

	// The successor owns the socket path now.
	s.ln.SetUnlinkOnClose(false)
	s.Stop()
	log.Infof("listener handed off")
	return nil
}
