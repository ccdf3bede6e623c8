package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/tradeeon/condition-engine/internal/api/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the engine's HTTP surface: a health check, Prometheus
// metrics, and pprof profiling. Every operational endpoint (conditions,
// bots, positions) is internal (registry/notifier/dca, driven by the
// evaluator's cycle and the ticker loop, not by request/response), so this
// router carries only the operability surface spec.md §9 calls out.
func SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)
	debug.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	debug.HandleFunc("/block", pprof.Handler("block").ServeHTTP)
	debug.HandleFunc("/threadcreate", pprof.Handler("threadcreate").ServeHTTP)
	debug.HandleFunc("/mutex", pprof.Handler("mutex").ServeHTTP)
	debug.HandleFunc("/allocs", pprof.Handler("allocs").ServeHTTP)

	return router
}
