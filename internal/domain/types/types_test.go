package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/ridesafe/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAck(t *testing.T) {
	Convey("Given an ack", t, func() {
		ack := types.Ack{Status: "accepted", Accepted: 2, Duplicates: 1}

		Convey("When it is encoded", func() {
			b, err := json.Marshal(ack)

			Convey("Then it uses the wire field names", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"status":"accepted","accepted":2,"duplicates":1}`)
			})
		})
	})
}

func TestCommandResult(t *testing.T) {
	Convey("Given a command result without an episode", t, func() {
		b, err := json.Marshal(types.CommandResult{Status: "idle"})

		Convey("Then the episode id is omitted", func() {
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"status":"idle"}`)
		})
	})
}
