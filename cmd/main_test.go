package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/tierank/internal/config"
	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("TIERANK_ADDR", ":8080")
		t.Setenv("TIERANK_STORE", "memory")
		t.Setenv("TIERANK_MAX_RANKING_LIMIT", "25")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.MaxRankingLimit, convey.ShouldEqual, 25)
		})
	})

	convey.Convey("Given an unknown store driver", t, func() {
		t.Setenv("TIERANK_STORE", "postgres")

		convey.Convey("Then configuration loading should fail", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestBuildService(t *testing.T) {
	convey.Convey("Given a default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory store is selected", func() {
			cfg.Store = config.StoreMemory
			svc, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer svc.Stop()

			convey.So(svc.GetStats()["movieEntries"], convey.ShouldEqual, 0)
		})

		convey.Convey("When the sqlite store is selected", func() {
			cfg.DBPath = filepath.Join(t.TempDir(), "nested", "tierank.db")
			svc, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer svc.Stop()

			entries, err := svc.Ranking(ctx, model.Series, 10)
			convey.So(err, convey.ShouldBeNil)
			convey.So(entries, convey.ShouldBeEmpty)
		})

		convey.Convey("When the score bands overlap", func() {
			cfg.Store = config.StoreMemory
			cfg.ScoreGoodFloor = 2
			_, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given the assembled HTTP mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Store = config.StoreMemory
		svc, err := buildService(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, svc, cfg)

		for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/api-docs", "/rankings/movie"} {
			convey.Convey("Then GET "+path+" should succeed", func() {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		}

		convey.Convey("Then a new title can be started", func() {
			body := `{"external_id":"tt0111161","title":"The Shawshank Redemption","media_kind":"movie","tier":"good"}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body)))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)
		})
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreMemory
		cfg.Addr = "127.0.0.1:0"

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg) }()

		convey.Convey("Then cancelling the context shuts it down cleanly", func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(5 * time.Second):
				t.Fatal("server did not stop")
			}
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreMemory
		svc, err := buildService(context.Background(), cfg)
		convey.So(err, convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("Then they stop with their context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then single updates do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then a separate metrics manager can be built", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
			convey.So(manager, convey.ShouldNotBeNil)
		})
	})
}
