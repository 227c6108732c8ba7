package queue

import (
	"context"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wolfinder/badges/internal/domain/model"
)

func job(pid int64) model.Job {
	return model.Job{Kind: model.JobAwardPass, ProfessionalID: pid}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(2))
		So(q.Len(), ShouldEqual, 0)
		So(q.Cap(), ShouldEqual, 2)

		Convey("When jobs are enqueued", func() {
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)
			So(q.Enqueue(ctx, job(2)), ShouldBeNil)

			Convey("Then they come out in order", func() {
				So(q.Len(), ShouldEqual, 2)
				So((<-q.Dequeue()).ProfessionalID, ShouldEqual, 1)
				So((<-q.Dequeue()).ProfessionalID, ShouldEqual, 2)
				So(q.Len(), ShouldEqual, 0)
			})

			Convey("Then a third job is rejected", func() {
				So(q.Enqueue(ctx, job(3)), ShouldEqual, ErrFull)
				So(q.Len(), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(q.Enqueue(cctx, job(1)), ShouldEqual, context.Canceled)
		})

		Convey("When the queue is closed with jobs pending", func() {
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then new jobs are refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, job(2)), ShouldEqual, ErrClosed)
			})

			Convey("Then pending jobs drain before the channel closes", func() {
				var got []int64
				for j := range q.Dequeue() {
					got = append(got, j.ProfessionalID)
				}
				So(got, ShouldResemble, []int64{1})
			})
		})
	})

	Convey("Given concurrent producers", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(1000))
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(base int64) {
				defer wg.Done()
				for j := int64(0); j < 100; j++ {
					_ = q.Enqueue(ctx, job(base*100+j))
				}
			}(int64(i))
		}
		wg.Wait()

		Convey("Then every job is queued", func() {
			So(q.Len(), ShouldEqual, 1000)
		})
	})
}
