// Package api is HTTP/JSON surface over mcu.Client.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/log2"
)

const (
	shutdownTimeout = 5 * time.Second
	maxBodySize     = 4 << 10
)

type Server struct {
	Log        *log2.Log
	client     *mcu.Client
	corsOrigin string
	listen     string
	router     *mux.Router
	server     *http.Server
	addr       net.Addr
}

func NewServer(client *mcu.Client, log *log2.Log, listen, corsOrigin string) *Server {
	self := &Server{
		Log:        log,
		client:     client,
		corsOrigin: corsOrigin,
		listen:     listen,
	}
	self.router = self.buildRouter()
	return self
}

func (self *Server) Handler() http.Handler { return self.router }

// Addr is known after Run, useful with listen=":0".
func (self *Server) Addr() net.Addr { return self.addr }

func (self *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(self.requestIDMiddleware, self.logMiddleware, self.recoverMiddleware, self.corsMiddleware)
	r.HandleFunc("/data", self.handleData).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/relay-status", self.handleRelayStatus).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/relay-control", self.handleRelayControl).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/relay", self.handleRelay).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/command", self.handleCommand).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/stat", self.handleStat).Methods(http.MethodGet, http.MethodOptions)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run starts listening and serves until a.Stop().
// Listen error is returned immediately.
func (self *Server) Run(a *alive.Alive) error {
	ln, err := net.Listen("tcp", self.listen)
	if err != nil {
		return errors.Annotatef(err, "api listen=%s", self.listen)
	}
	self.addr = ln.Addr()
	self.server = &http.Server{
		Handler:           self.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	if !a.Add(2) {
		ln.Close()
		return errors.Errorf("api run: already stopping")
	}
	self.Log.Infof("api listen=%s", self.addr)
	go func() {
		defer a.Done()
		if err := self.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			self.Log.Errorf("api serve err=%v", err)
			a.Stop()
		}
	}()
	go func() {
		defer a.Done()
		<-a.StopChan()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := self.server.Shutdown(ctx); err != nil {
			self.Log.Errorf("api shutdown err=%v", err)
		}
	}()
	return nil
}
