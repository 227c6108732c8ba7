package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wolfinder/badges/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is recorded", func() {
			So(d.SeenAndRecord(ctx, "decay_sweep:7"), ShouldBeFalse)

			Convey("Then recording it again reports it as pending", func() {
				So(d.SeenAndRecord(ctx, "decay_sweep:7"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then other keys are independent", func() {
				So(d.SeenAndRecord(ctx, "decay_sweep:8"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "award_pass:7"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})

			Convey("And unrecorded", func() {
				d.Unrecord(ctx, "decay_sweep:7")

				Convey("Then it can be recorded again", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "decay_sweep:7"), ShouldBeFalse)
				})
			})
		})

		Convey("When an unknown key is unrecorded", func() {
			d.Unrecord(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})
	})
}

func TestInMemoryDeduperMaxSize(t *testing.T) {
	Convey("Given a deduper bounded to two keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		d.SeenAndRecord(ctx, "a")
		d.SeenAndRecord(ctx, "b")

		Convey("Then further keys are let through without being recorded", func() {
			So(d.SeenAndRecord(ctx, "c"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "c"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given many goroutines racing on the same keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("job:%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is recorded exactly once", func() {
			So(fresh, ShouldEqual, 50)
			So(d.Size(), ShouldEqual, 50)
		})
	})
}
