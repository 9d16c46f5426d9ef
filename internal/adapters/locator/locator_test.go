package locator

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/okian/ridesafe/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeGPSD accepts one connection, waits for the watch command and replies with lines.
func fakeGPSD(t *testing.T, lines []string, hold bool) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		cmd, _ := bufio.NewReader(conn).ReadString('\n')
		if !strings.HasPrefix(cmd, "?WATCH=") {
			return
		}
		for _, l := range lines {
			_, _ = conn.Write([]byte(l + "\n"))
		}
		if hold {
			time.Sleep(2 * time.Second)
		}
	}()
	return ln.Addr().String()
}

func TestParseTPV(t *testing.T) {
	Convey("Given gpsd report lines", t, func() {
		Convey("Then a TPV with a 3D fix yields a position", func() {
			pos, ok := parseTPV([]byte(`{"class":"TPV","mode":3,"lat":45.5,"lon":-122.9}`))
			So(ok, ShouldBeTrue)
			So(pos, ShouldResemble, model.Position{Lat: 45.5, Lon: -122.9})
		})

		Convey("Then reports without a usable fix are ignored", func() {
			for _, l := range []string{
				`{"class":"VERSION","release":"3.25"}`,
				`{"class":"TPV","mode":1}`,
				`{"class":"TPV","mode":3,"lat":1.0}`,
				`not json`,
			} {
				_, ok := parseTPV([]byte(l))
				So(ok, ShouldBeFalse)
			}
		})
	})
}

func TestGPSDLocate(t *testing.T) {
	Convey("Given a gpsd daemon that reports a fix after a few messages", t, func() {
		addr := fakeGPSD(t, []string{
			`{"class":"VERSION","release":"3.25"}`,
			`{"class":"DEVICES","devices":[]}`,
			`{"class":"TPV","mode":1}`,
			`{"class":"TPV","mode":2,"lat":52.52,"lon":13.405}`,
		}, false)

		Convey("When locating", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			pos, err := NewGPSD(addr).Locate(ctx)

			Convey("Then the first fix is returned", func() {
				So(err, ShouldBeNil)
				So(pos, ShouldResemble, model.Position{Lat: 52.52, Lon: 13.405})
			})
		})
	})

	Convey("Given a gpsd daemon without a fix that closes the stream", t, func() {
		addr := fakeGPSD(t, []string{`{"class":"TPV","mode":1}`}, false)

		Convey("Then ErrNoFix is returned", func() {
			_, err := NewGPSD(addr).Locate(context.Background())
			So(errors.Is(err, ErrNoFix), ShouldBeTrue)
		})
	})

	Convey("Given a gpsd daemon that never reports a fix", t, func() {
		addr := fakeGPSD(t, nil, true)

		Convey("Then the context deadline ends the lookup", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			start := time.Now()
			_, err := NewGPSD(addr).Locate(ctx)
			So(err, ShouldNotBeNil)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})
	})

	Convey("Given nothing listening", t, func() {
		ln, _ := net.Listen("tcp", "127.0.0.1:0")
		addr := ln.Addr().String()
		_ = ln.Close()

		Convey("Then the dial error is returned", func() {
			_, err := NewGPSD(addr).Locate(context.Background())
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an empty address", t, func() {
		So(NewGPSD(" ").addr, ShouldEqual, DefaultGPSDAddr)
	})
}

func TestStatic(t *testing.T) {
	Convey("Given a static locator", t, func() {
		s := Static{Pos: model.Position{Lat: 1, Lon: 2}}

		Convey("Then it returns its position", func() {
			pos, err := s.Locate(context.Background())
			So(err, ShouldBeNil)
			So(pos, ShouldResemble, model.Position{Lat: 1, Lon: 2})
		})

		Convey("Then a cancelled context fails", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := s.Locate(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
