package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "wolfinder")
				So(manager.subsystem, ShouldEqual, "badges")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("engine"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})

			Convey("And collectors should be registered under the namespace", func() {
				manager.awards.WithLabelValues("awarded", "system").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_engine_awards_total")
			})
		})

		Convey("When empty option values are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "wolfinder")
				So(manager.subsystem, ShouldEqual, "badges")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestRecordHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("Evaluation helpers should not panic", func() {
			So(func() { RecordEvaluation("cache") }, ShouldNotPanic)
			So(func() { RecordEvaluation("computed") }, ShouldNotPanic)
			So(func() { RecordEvaluationLatency(3.2) }, ShouldNotPanic)
			So(func() { RecordMetricsLatency(1.1) }, ShouldNotPanic)
			So(func() { RecordUnrecognizedRequirement("unknown_req") }, ShouldNotPanic)
		})

		Convey("Cache helpers should not panic", func() {
			So(func() { RecordCacheHit() }, ShouldNotPanic)
			So(func() { RecordCacheMiss() }, ShouldNotPanic)
			So(func() { UpdateCacheEntries(12) }, ShouldNotPanic)
			So(func() { RecordCacheError("get") }, ShouldNotPanic)
		})

		Convey("Ledger helpers should not panic", func() {
			So(func() { RecordAward("awarded", "system") }, ShouldNotPanic)
			So(func() { RecordAward("duplicate", "admin") }, ShouldNotPanic)
			So(func() { RecordRevocation("revoked", "expired") }, ShouldNotPanic)
			So(func() { RecordRepositoryQueryLatency("award", 0.4) }, ShouldNotPanic)
			So(func() { RecordRepositoryError("award") }, ShouldNotPanic)
		})

		Convey("Job helpers should not panic", func() {
			So(func() { UpdateQueueSize(3) }, ShouldNotPanic)
			So(func() { UpdateQueueCapacity(1024) }, ShouldNotPanic)
			So(func() { RecordQueueRejected() }, ShouldNotPanic)
			So(func() { RecordJobProcessed("award_pass", "ok") }, ShouldNotPanic)
			So(func() { RecordJobLatency("decay_sweep", 8) }, ShouldNotPanic)
			So(func() { UpdateWorkerCount(4) }, ShouldNotPanic)
		})

		Convey("HTTP helpers should not panic", func() {
			So(func() { RecordHTTPRequest("/api/badges", "GET", "200") }, ShouldNotPanic)
			So(func() { RecordHTTPRequestDuration("/api/badges", "GET", "200", 1.5) }, ShouldNotPanic)
		})

		Convey("Counters should reflect recorded values", func() {
			before := testutil.ToFloat64(globalManager.cacheHits)
			RecordCacheHit()
			So(testutil.ToFloat64(globalManager.cacheHits), ShouldEqual, before+1)

			UpdateWorkerCount(7)
			So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 7)
		})

		Convey("The registry should be gatherable", func() {
			So(GetRegistry(), ShouldNotBeNil)
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
