package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"colony.ai/internal/observability"
	"colony.ai/internal/sim/engine"
	"colony.ai/internal/transport/observer"
)

type muxOptions struct {
	// Admin exposes local-only state and observer endpoints.
	Admin bool
	Pprof bool
}

func newMux(eng *engine.Engine, obs *observer.Server, gatherer prometheus.Gatherer, opts muxOptions, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.HandlerFor(gatherer))

	if opts.Admin {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				EngineID string               `json:"engine_id"`
				Tick     uint64               `json:"tick"`
				Metrics  engine.EngineMetrics `json:"metrics"`
			}{
				EngineID: eng.ID(),
				Tick:     eng.CurrentTick(),
				Metrics:  eng.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	} else if logger != nil {
		logger.Printf("admin endpoints disabled (COLONY_ENABLE_ADMIN_HTTP=false)")
	}

	if opts.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else if logger != nil {
		logger.Printf("pprof endpoints disabled (COLONY_ENABLE_PPROF_HTTP=false)")
	}
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
