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
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ReFlexN/system-netd/config"
)

const adminStatusURL = "/v1/status"

// StartAdmin serves the daemon's status endpoint on a second unix socket.
func (s *Server) StartAdmin(sockPath string) error {
	if sockPath == "" {
		sockPath = config.AdminSockPath
	}
	if err := os.RemoveAll(sockPath); err != nil {
		return pkgerrors.Wrap(err, sockPath)
	}
	l, err := net.Listen("unix", sockPath)
	if err != nil {
		return pkgerrors.Wrap(err, "admin listen")
	}

	r := mux.NewRouter()
	r.Path(adminStatusURL).
		Methods("GET").
		HandlerFunc(s.Status)

	ss := http.Server{
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go func() {
		if err := ss.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("admin serve: %v", err)
		}
	}()
	go func() {
		<-s.stop
		_ = ss.Shutdown(context.Background())
	}()
	return nil
}

// Status reports the per-command handling counters as JSON.
func (s *Server) Status(w http.ResponseWriter, req *http.Request) {
	bs, err := json.Marshal(s.Counters())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bs)
}
