package export_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/ridesafe/internal/adapters/export"
	"github.com/okian/ridesafe/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr[T any](v T) *T { return &v }

func history() []model.Reading {
	return []model.Reading{
		{Seq: 1, AccelerationG: 1, SpeedKmh: 0, RideMode: model.RideModeIdle, Posture: ptr("seated, leaning"), CapturedAtMillis: 100},
		{Seq: 2, AccelerationG: 4.5, SpeedKmh: 12.3, RideMode: model.RideModeMotorcycle, Lat: ptr(1.5), Lon: ptr(2.5), PositionSource: model.PositionDevice, CapturedAtMillis: 600},
	}
}

func TestWriteJSON(t *testing.T) {
	Convey("Given a history", t, func() {
		var buf bytes.Buffer
		So(export.Write(&buf, export.FormatJSON, history()), ShouldBeNil)

		Convey("Then it round-trips as an array of readings", func() {
			var got []model.Reading
			So(json.Unmarshal(buf.Bytes(), &got), ShouldBeNil)
			So(cmp.Diff(history(), got), ShouldBeEmpty)
		})

		Convey("Then field names are stable", func() {
			So(buf.String(), ShouldContainSubstring, `"accelerationG":1`)
			So(buf.String(), ShouldContainSubstring, `"speedKmh":12.3`)
			So(buf.String(), ShouldContainSubstring, `"rideMode":"Motorcycle"`)
			So(buf.String(), ShouldContainSubstring, `"capturedAtMillis":600`)
		})
	})

	Convey("Given an empty history", t, func() {
		var buf bytes.Buffer
		So(export.WriteJSON(&buf, nil), ShouldBeNil)
		So(strings.TrimSpace(buf.String()), ShouldEqual, "[]")
	})
}

func TestWriteCSV(t *testing.T) {
	Convey("Given a history whose records carry different fields", t, func() {
		var buf bytes.Buffer
		So(export.Write(&buf, export.FormatCSV, history()), ShouldBeNil)
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

		Convey("Then the header is the first record's keys", func() {
			So(lines[0], ShouldEqual, "seq,accelerationG,speedKmh,rideMode,posture,capturedAtMillis")
		})

		Convey("Then each record is one row in header order", func() {
			So(len(lines), ShouldEqual, 3)
			So(lines[1], ShouldEqual, `1,1,0,Idle,"seated, leaning",100`)
			So(lines[2], ShouldEqual, "2,4.5,12.3,Motorcycle,,600")
		})
	})

	Convey("Given an empty history", t, func() {
		var buf bytes.Buffer
		So(export.WriteCSV(&buf, nil), ShouldBeNil)
		So(buf.Len(), ShouldEqual, 0)
	})

	Convey("Given an unknown format", t, func() {
		So(export.Write(&bytes.Buffer{}, "xml", history()), ShouldNotBeNil)
		So(export.ContentType(export.FormatCSV), ShouldStartWith, "text/csv")
		So(export.ContentType(export.FormatJSON), ShouldEqual, "application/json")
	})
}
