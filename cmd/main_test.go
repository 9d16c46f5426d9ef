package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/ridesafe/internal/adapters/dialer"
	"github.com/okian/ridesafe/internal/adapters/locator"
	"github.com/okian/ridesafe/internal/adapters/source"
	service "github.com/okian/ridesafe/internal/app"
	"github.com/okian/ridesafe/internal/config"
	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestWiring(t *testing.T) {
	convey.Convey("Given a default configuration", t, func() {
		cfg := config.New()
		log := logger.Nop()

		convey.Convey("Then no locator or source is built", func() {
			convey.So(newLocator(cfg), convey.ShouldBeNil)
			svc := service.New(service.WithLogger(log))
			src, err := newSource(cfg, svc, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(src, convey.ShouldBeNil)
			convey.So(svc.GetStats(), convey.ShouldNotContainKey, "source")
		})

		convey.Convey("Then the log dialer is used", func() {
			_, ok := newDialer(cfg, log).(*dialer.LogDialer)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the static locator and webhook dialer are selected", func() {
			cfg.Locator = config.LocatorStatic
			cfg.StaticLat, cfg.StaticLon = 52.5, 13.4
			cfg.Dialer = config.DialerWebhook
			cfg.DialerWebhookURL = "http://127.0.0.1:1/call"

			convey.Convey("Then both are wired", func() {
				l, ok := newLocator(cfg).(locator.Static)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(l.Pos, convey.ShouldResemble, model.Position{Lat: 52.5, Lon: 13.4})
				_, ok = newDialer(cfg, log).(*dialer.WebhookDialer)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the gpsd locator is selected", func() {
			cfg.Locator = config.LocatorGPSD
			_, ok := newLocator(cfg).(*locator.GPSD)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the poll source is selected", func() {
			cfg.Source = config.SourcePoll
			cfg.PollURL = "http://127.0.0.1:1/samples"
			svc := service.New(service.WithLogger(log))
			src, err := newSource(cfg, svc, log)

			convey.Convey("Then a poller is built and its counters show in stats", func() {
				convey.So(err, convey.ShouldBeNil)
				_, ok := src.(*source.Poller)
				convey.So(ok, convey.ShouldBeTrue)
				snap, ok := svc.GetStats()["source"].(source.Snapshot)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(snap.Name, convey.ShouldEqual, "poll")
				convey.So(snap.State, convey.ShouldEqual, "stopped")
			})
		})

		convey.Convey("When the serial source is selected", func() {
			cfg.Source = config.SourceSerial
			cfg.SerialPort = "/dev/ttyUSB0"
			src, err := newSource(cfg, service.New(service.WithLogger(log)), log)

			convey.Convey("Then a serial reader is built without opening the port", func() {
				convey.So(err, convey.ShouldBeNil)
				_, ok := src.(*source.Serial)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given a started service behind the mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := service.New(serviceOptions(cfg, logger.Nop())...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		mux := newMux(ctx, cfg, svc)

		convey.Convey("Then every route answers", func() {
			for _, tc := range []struct {
				method, path, body string
				code               int
			}{
				{http.MethodGet, "/healthz", "", http.StatusOK},
				{http.MethodGet, "/metrics", "", http.StatusOK},
				{http.MethodGet, "/stats", "", http.StatusOK},
				{http.MethodGet, "/openapi.yaml", "", http.StatusOK},
				{http.MethodGet, "/api-docs", "", http.StatusOK},
				{http.MethodGet, "/emergency", "", http.StatusOK},
				{http.MethodGet, "/history", "", http.StatusOK},
				{http.MethodPost, "/emergency/cancel", "", http.StatusConflict},
				{http.MethodPost, "/samples", `{"az":9.8}`, http.StatusAccepted},
			} {
				req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, tc.code)
			}
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given a configuration with a device id", t, func() {
		cfg := config.New()
		cfg.DeviceID = "bike-1"

		convey.Convey("Then every metrics option is derived from it", func() {
			convey.So(metricsOptions(cfg), convey.ShouldHaveLength, 4)
		})
	})
}

func TestUpdateMetrics(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("Then refreshing gauges does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
