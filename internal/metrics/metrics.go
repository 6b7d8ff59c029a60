// Package metrics holds the prometheus collectors of the resolver engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "entityql"

var (
	// OperationsCounter counts traced entity operations.
	OperationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "operations_total",
		Help:      "The total number of traced entity operations.",
	}, []string{"type", "op", "arity"})

	// AuthorizationDenialsCounter counts authorization checks that denied.
	AuthorizationDenialsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "authorization_denials_total",
		Help:      "The total number of denied authorization checks.",
	}, []string{"type", "op", "moment"})

	// FTSDocumentsGauge reports the number of documents per full-text index.
	FTSDocumentsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "fts_documents",
		Help:      "The number of documents in the full-text index of an entity type.",
	}, []string{"type"})
)

// ObserveOperation counts one operation on typ.
func ObserveOperation(typ, op, arity string) {
	OperationsCounter.WithLabelValues(typ, op, arity).Inc()
}

// ObserveDenial counts one denied authorization check.
func ObserveDenial(typ, op, moment string) {
	AuthorizationDenialsCounter.WithLabelValues(typ, op, moment).Inc()
}

// SetFTSDocuments records the document count of typ's index.
func SetFTSDocuments(typ string, n uint64) {
	FTSDocumentsGauge.WithLabelValues(typ).Set(float64(n))
}
