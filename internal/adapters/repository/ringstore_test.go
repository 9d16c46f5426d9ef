package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/ridesafe/internal/adapters/repository"
	"github.com/okian/ridesafe/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func reading(seq uint64) model.Reading {
	return model.Reading{Seq: seq, AccelerationG: 1, RideMode: model.RideModeIdle, CapturedAtMillis: int64(seq)}
}

func seqs(rs []model.Reading) []uint64 {
	out := make([]uint64, len(rs))
	for i, r := range rs {
		out[i] = r.Seq
	}
	return out
}

func TestRingStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store with the default capacity", t, func() {
		s := repository.NewRingStore()
		So(s.Cap(), ShouldEqual, 1000)
		So(s.Len(ctx), ShouldEqual, 0)

		Convey("When 1500 readings are appended", func() {
			evictions := 0
			for i := uint64(1); i <= 1500; i++ {
				if s.Append(ctx, reading(i)) {
					evictions++
				}
			}

			Convey("Then exactly the last 1000 remain, oldest first", func() {
				snap := s.Snapshot(ctx)
				So(len(snap), ShouldEqual, 1000)
				So(evictions, ShouldEqual, 500)
				want := make([]uint64, 1000)
				for i := range want {
					want[i] = uint64(501 + i)
				}
				So(cmp.Diff(want, seqs(snap)), ShouldBeEmpty)
			})
		})

		Convey("When the store is empty", func() {
			_, ok := s.Latest(ctx)
			last, err := s.LastN(ctx, 5, false)

			Convey("Then reads return nothing", func() {
				So(ok, ShouldBeFalse)
				So(err, ShouldBeNil)
				So(last, ShouldBeEmpty)
				So(s.Snapshot(ctx), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a small store that has wrapped", t, func() {
		s := repository.NewRingStore(repository.WithCapacity(4))
		for i := uint64(1); i <= 6; i++ {
			s.Append(ctx, reading(i))
		}

		Convey("Then LastN returns the newest entries in either order", func() {
			asc, err := s.LastN(ctx, 3, false)
			So(err, ShouldBeNil)
			So(seqs(asc), ShouldResemble, []uint64{4, 5, 6})

			desc, err := s.LastN(ctx, 3, true)
			So(err, ShouldBeNil)
			So(seqs(desc), ShouldResemble, []uint64{6, 5, 4})

			all, err := s.LastN(ctx, 100, false)
			So(err, ShouldBeNil)
			So(seqs(all), ShouldResemble, []uint64{3, 4, 5, 6})

			none, err := s.LastN(ctx, 0, false)
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)
		})

		Convey("Then a negative limit is rejected", func() {
			_, err := s.LastN(ctx, -1, false)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Then Latest is the newest entry", func() {
			r, ok := s.Latest(ctx)
			So(ok, ShouldBeTrue)
			So(r.Seq, ShouldEqual, 6)
		})

		Convey("Then snapshots are copies", func() {
			snap := s.Snapshot(ctx)
			snap[0].Seq = 999
			So(s.Snapshot(ctx)[0].Seq, ShouldEqual, 3)
		})

		Convey("When a retained reading is amended", func() {
			err := s.Amend(ctx, 6, model.Position{Lat: 10, Lon: 20})

			Convey("Then it carries the fallback position", func() {
				So(err, ShouldBeNil)
				r, _ := s.Latest(ctx)
				So(r.HasPosition(), ShouldBeTrue)
				So(*r.Lat, ShouldEqual, 10)
				So(r.PositionSource, ShouldEqual, model.PositionFallback)
			})
		})

		Convey("When an evicted reading is amended", func() {
			err := s.Amend(ctx, 1, model.Position{Lat: 10, Lon: 20})

			Convey("Then it is reported missing", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent readers and a single writer", t, func() {
		s := repository.NewRingStore(repository.WithCapacity(50))
		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(1); i <= 500; i++ {
				s.Append(ctx, reading(i))
			}
		}()
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					snap := s.Snapshot(ctx)
					for j := 1; j < len(snap); j++ {
						if snap[j].Seq != snap[j-1].Seq+1 {
							panic("snapshot out of order")
						}
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then the final state holds the newest entries", func() {
			So(s.Len(ctx), ShouldEqual, 50)
			r, _ := s.Latest(ctx)
			So(r.Seq, ShouldEqual, 500)
		})
	})
}
