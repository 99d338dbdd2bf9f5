package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty or nil option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should hold and creation should succeed", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording gateway metrics", func() {
			So(func() {
				RecordGatewayCall("submit_run", "ok")
				RecordGatewayCall("submit_run", "token_already_used")
				RecordGatewayCall("get_quest", "rate_limited")
				RecordRateLimited("submit")
				RecordXPGranted(100)
				RecordXPGranted(0)
				RecordRunAccepted()
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/run/submit", "POST", "200")
				RecordHTTPRequestDuration("/run/submit", "POST", "200", 12.5)
				RecordHTTPRequest("", "", "500")
			}, ShouldNotPanic)
		})

		Convey("When recording store metrics", func() {
			So(func() {
				RecordStoreLatency("apply_quest", 3.2)
				RecordStoreError("consume_token")
			}, ShouldNotPanic)
		})

		Convey("When recording pipeline metrics", func() {
			So(func() {
				RecordFrameProcessed()
				RecordFrameOccluded()
				RecordStableGesture("tiger")
				RecordRunCompleted("rank")
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024)
				UpdateSystemGoroutineCount(42)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent metric writers", t, func() {
		done := make(chan bool, 10)

		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordGatewayCall("submit_run", "ok")
					RecordFrameProcessed()
					RecordStoreLatency("apply_quest", float64(j))
				}
				done <- true
			}()
		}

		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then concurrent access should not panic", func() {
			So(true, ShouldBeTrue)
		})
	})
}
