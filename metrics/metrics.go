package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/storyproof/story-acceptor/types"
)

const (
	MetricsNamespace = "story_acceptor"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "results_total",
		Help:      "Count of classified driver invocations",
	}, []string{
		"run_id",
		"driver",
		"status",
	})

	conformanceResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "conformance_results",
		Help:      "Per-status totals of the last conformance run",
	}, []string{
		"run_id",
		"status",
	})

	conformancePairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "conformance_pairs_total",
		Help:      "Total number of scheduled test-driver pairs",
	}, []string{
		"run_id",
	})

	conformanceRunDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "conformance_run_duration",
		Help:      "Duration of the conformance run in seconds",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordResult counts one classified invocation.
func RecordResult(runID string, driver string, status types.Status) {
	if !types.IsValidStatus(status) {
		log.Error("RecordResult - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "results_total",
			"run_id", runID,
			"driver", driver,
			"status", status)
	}
	resultsTotal.WithLabelValues(runID, driver, string(status)).Inc()
}

// RecordRun records the aggregate outcome of a whole run.
func RecordRun(runID string, scheduled int, byStatus map[types.Status]int, duration time.Duration) {
	for status, count := range byStatus {
		conformanceResults.WithLabelValues(runID, string(status)).Set(float64(count))
	}
	conformancePairsTotal.WithLabelValues(runID).Add(float64(scheduled))
	conformanceRunDuration.WithLabelValues(runID).Set(duration.Seconds())
}
