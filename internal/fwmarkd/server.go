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

// Package fwmarkd implements the reference fwmark daemon: it receives
// commands and socket descriptors from unprivileged processes and applies
// routing marks on their behalf.
package fwmarkd

import (
	"errors"
	"net"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ReFlexN/system-netd/config"
)

// Permission decides whether uid may use netID. The daemon carries no richer
// policy than this hook.
type Permission func(uid uint32, netID uint32) bool

type Server struct {
	sync.Mutex
	sockPath string
	allow    Permission
	ln       *net.UnixListener
	counters map[string]uint64
	stop     chan struct{}
}

// NewServer returns a daemon bound to sockPath (the configured rendezvous
// socket when empty). A nil allow permits every uid on every network.
func NewServer(sockPath string, allow Permission) *Server {
	if sockPath == "" {
		sockPath = config.FwmarkSockPath
	}
	if allow == nil {
		allow = func(uint32, uint32) bool { return true }
	}
	return &Server{
		sockPath: sockPath,
		allow:    allow,
		counters: make(map[string]uint64),
		stop:     make(chan struct{}),
	}
}

// Start begins serving. A listener left behind by a retiring predecessor is
// taken over when one is offered on the handoff socket; otherwise a fresh
// listener replaces whatever stale socket file remains.
func (s *Server) Start() error {
	ln := takeoverListener(config.HandoffSockPath)
	if ln == nil {
		if err := os.RemoveAll(s.sockPath); err != nil {
			return pkgerrors.Wrap(err, s.sockPath)
		}
		var err error
		ln, err = net.ListenUnix("unix", &net.UnixAddr{Name: s.sockPath, Net: "unix"})
		if err != nil {
			return pkgerrors.Wrap(err, "listen")
		}
	} else {
		log.Infof("took over fwmark listener from predecessor")
	}
	s.ln = ln
	go s.serve()
	log.Infof("fwmark daemon serving on %s", s.sockPath)
	return nil
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Errorf("accept: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Stop closes the listener and unblocks everything waiting on the server.
func (s *Server) Stop() {
	select {
	case <-s.stop:
		return
	default:
	}
	close(s.stop)
	if s.ln != nil {
		s.ln.Close()
	}
}

// Done is closed once the server has been stopped or handed off.
func (s *Server) Done() <-chan struct{} {
	return s.stop
}

func (s *Server) count(kind string) {
	s.Lock()
	s.counters[kind]++
	s.Unlock()
}

// Counters snapshots the per-command handling counts.
func (s *Server) Counters() map[string]uint64 {
	s.Lock()
	defer s.Unlock()
	out := make(map[string]uint64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}
