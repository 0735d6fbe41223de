package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "tierank")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.undos.Inc()

			Convey("Then metric names carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_undos_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "tierank")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording the ranking flow", func() {
			before := testutil.ToFloat64(globalManager.comparisons.WithLabelValues("better"))
			RecordComparison("better")
			RecordComparison("better")

			Convey("Then counters move", func() {
				So(testutil.ToFloat64(globalManager.comparisons.WithLabelValues("better")), ShouldEqual, before+2)
			})

			Convey("And the other helpers do not panic", func() {
				So(func() {
					RecordSessionStarted("movie", "insert")
					RecordSessionCommitted("movie", "insert", 3)
					RecordSessionClosed("expired")
					RecordUndo()
					RecordStaleDecision()
					RecordDuplicateDecision()
					UpdateActiveSessions(2)
					UpdateEntriesTotal("series", 10)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording store and HTTP metrics", func() {
			So(func() {
				RecordStoreLatency("sqlite", "insert", 1.5)
				RecordStoreRollback("sqlite", "insert")
				RecordHTTPRequest("/sessions", "POST", "201")
				RecordHTTPRequestDuration("/sessions", "POST", "201", 2)
				RecordErrorByComponent("store", "rollback")
				RecordErrorByType("client_error", "medium")
				RecordErrorByEndpoint("/sessions", "POST", "client_error")
				RecordErrorLatency("http", "client_error", 1)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			gauge := testutil.ToFloat64(globalManager.activeSessions)
			UpdateActiveSessions(7)
			So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 7)
			UpdateActiveSessions(int(gauge))
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	before := testutil.ToFloat64(globalManager.undos)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				RecordUndo()
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(globalManager.undos) - before; got != 1000 {
		t.Fatalf("expected 1000 undos, got %v", got)
	}
}

func TestGetRegistry(t *testing.T) {
	RecordStaleDecision()
	families, err := GetRegistry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if strings.HasSuffix(f.GetName(), "stale_decisions_total") {
			return
		}
	}
	t.Fatal("stale decisions counter not exported")
}
