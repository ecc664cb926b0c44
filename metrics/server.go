package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/smartcard-provisioning-worker/common"
)

// MetricsServer serves /metrics from the default registry.
type MetricsServer struct {
	srv *http.Server
}

// New registers the worker collectors plus a <namespace>_build_info gauge
// and prepares a server listening on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	MustRegister()

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the running worker.",
		},
		[]string{"version"},
	)
	if err := prometheus.Register(buildInfo); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		buildInfo = are.ExistingCollector.(*prometheus.GaugeVec)
	}
	buildInfo.WithLabelValues(common.Version).Set(1)

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the HTTP handler serving /metrics.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
