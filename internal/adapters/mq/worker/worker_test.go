package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/wolfinder/badges/internal/adapters/mq/queue"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

type recorder struct {
	mu   sync.Mutex
	seen map[int64][]time.Time
	jobs []model.Job
	fail map[int64]error
}

func newRecorder() *recorder {
	return &recorder{seen: make(map[int64][]time.Time), fail: make(map[int64]error)}
}

func (r *recorder) Handle(_ context.Context, job model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	r.seen[job.ProfessionalID] = append(r.seen[job.ProfessionalID], job.RequestedAt)
	if job.ProfessionalID < 0 {
		panic("negative id")
	}
	return r.fail[job.ProfessionalID]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestShard(t *testing.T) {
	Convey("Given several workers", t, func() {
		Convey("Then a professional always maps to the same worker", func() {
			for id := int64(1); id < 200; id++ {
				s := Shard(id, 8)
				So(s, ShouldBeBetweenOrEqual, 0, 7)
				So(Shard(id, 8), ShouldEqual, s)
			}
		})

		Convey("Then ids spread over more than one worker", func() {
			used := map[int]bool{}
			for id := int64(1); id < 200; id++ {
				used[Shard(id, 8)] = true
			}
			So(len(used), ShouldBeGreaterThan, 1)
		})

		Convey("Then a single worker takes everything", func() {
			So(Shard(12345, 1), ShouldEqual, 0)
			So(Shard(12345, 0), ShouldEqual, 0)
		})
	})
}

func TestPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given a started pool", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		p := NewPool(rec, WithWorkers(4), WithQueueCapacity(64), WithLogger(logger.Nop()))
		p.Start(ctx)
		So(p.Running(), ShouldBeTrue)
		So(p.Workers(), ShouldEqual, 4)

		Convey("When jobs for several professionals are submitted", func() {
			base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 10; i++ {
				for id := int64(1); id <= 5; id++ {
					err := p.Submit(ctx, model.Job{
						Kind:           model.JobAwardPass,
						ProfessionalID: id,
						RequestedAt:    base.Add(time.Duration(i) * time.Second),
					})
					So(err, ShouldBeNil)
				}
			}
			So(p.Stop(ctx), ShouldBeNil)

			Convey("Then every job runs, in submission order per professional", func() {
				So(rec.count(), ShouldEqual, 50)
				for id := int64(1); id <= 5; id++ {
					times := rec.seen[id]
					So(len(times), ShouldEqual, 10)
					for i := 1; i < len(times); i++ {
						So(times[i].After(times[i-1]), ShouldBeTrue)
					}
				}
			})
		})

		Convey("When a handler fails or panics", func() {
			rec.fail[7] = errors.New("boom")
			So(p.Submit(ctx, model.Job{Kind: model.JobDecaySweep, ProfessionalID: 7}), ShouldBeNil)
			So(p.Submit(ctx, model.Job{Kind: model.JobDecaySweep, ProfessionalID: -1}), ShouldBeNil)
			So(p.Submit(ctx, model.Job{Kind: model.JobDecaySweep, ProfessionalID: 8}), ShouldBeNil)
			So(p.Stop(ctx), ShouldBeNil)

			Convey("Then the worker keeps going", func() {
				So(rec.count(), ShouldEqual, 3)
			})
		})

		Convey("When the pool is stopped", func() {
			So(p.Stop(ctx), ShouldBeNil)
			So(p.Stop(ctx), ShouldBeNil)

			Convey("Then submissions are refused", func() {
				So(p.Running(), ShouldBeFalse)
				So(p.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: 1}), ShouldWrap, ErrNotStarted)
			})
		})
	})
}

type blocker struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blocker) Handle(ctx context.Context, _ model.Job) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestPoolBackpressure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given a single busy worker with a tiny queue", t, func() {
		ctx := context.Background()
		b := &blocker{release: make(chan struct{}), started: make(chan struct{})}
		p := NewPool(b, WithWorkers(1), WithQueueCapacity(1), WithLogger(logger.Nop()))
		p.Start(ctx)

		So(p.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: 1}), ShouldBeNil)
		<-b.started
		So(p.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: 1}), ShouldBeNil)

		Convey("Then the next job is rejected as full", func() {
			err := p.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: 1})
			So(err, ShouldWrap, queue.ErrFull)
			So(p.Len(), ShouldEqual, 1)
		})

		close(b.release)
		So(p.Stop(ctx), ShouldBeNil)
	})
}

type countingBlocker struct {
	blocker
	mu   sync.Mutex
	runs []model.JobKind
}

func (c *countingBlocker) Handle(ctx context.Context, job model.Job) error {
	c.mu.Lock()
	c.runs = append(c.runs, job.Kind)
	c.mu.Unlock()
	return c.blocker.Handle(ctx, job)
}

func TestPoolCoalesce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given a busy worker that coalesces decay sweeps", t, func() {
		ctx := context.Background()
		c := &countingBlocker{blocker: blocker{release: make(chan struct{}), started: make(chan struct{})}}
		p := NewPool(c, WithWorkers(1), WithQueueCapacity(8), WithCoalesce(model.JobDecaySweep), WithLogger(logger.Nop()))
		p.Start(ctx)

		sweep := model.Job{Kind: model.JobDecaySweep, ProfessionalID: 1}
		So(p.Submit(ctx, sweep), ShouldBeNil)
		<-c.started

		Convey("When the same sweep is submitted while one is queued", func() {
			So(p.Submit(ctx, sweep), ShouldBeNil)
			So(p.Submit(ctx, sweep), ShouldBeNil)
			So(p.Submit(ctx, sweep), ShouldBeNil)
			So(p.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: 1}), ShouldBeNil)
			So(p.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: 1}), ShouldBeNil)

			Convey("Then only one sweep is queued and award passes are kept", func() {
				So(p.Len(), ShouldEqual, 3)
				close(c.release)
				So(p.Stop(ctx), ShouldBeNil)
				So(c.runs, ShouldResemble, []model.JobKind{
					model.JobDecaySweep, model.JobDecaySweep, model.JobAwardPass, model.JobAwardPass,
				})
			})
		})
	})
}

type holders struct {
	ids []int64
	err error
}

func (h holders) ProfessionalsWithActiveAwards(context.Context) ([]int64, error) { return h.ids, h.err }

type collect struct {
	mu   sync.Mutex
	jobs []model.Job
	full bool
}

func (c *collect) Submit(_ context.Context, job model.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return queue.ErrFull
	}
	c.jobs = append(c.jobs, job)
	return nil
}

func (c *collect) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func TestSweeper(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given award holders", t, func() {
		ctx := context.Background()
		c := &collect{}
		s := NewSweeper(holders{ids: []int64{3, 9}}, c, 10*time.Millisecond, logger.Nop())

		Convey("When a sweep runs once", func() {
			enqueued, rejected, err := s.RunOnce(ctx)

			Convey("Then one decay job per holder is submitted", func() {
				So(err, ShouldBeNil)
				So(enqueued, ShouldEqual, 2)
				So(rejected, ShouldEqual, 0)
				So(c.jobs[0].Kind, ShouldEqual, model.JobDecaySweep)
				So(c.jobs[1].ProfessionalID, ShouldEqual, 9)
			})
		})

		Convey("When the queue is full", func() {
			c.full = true
			enqueued, rejected, err := s.RunOnce(ctx)
			So(err, ShouldBeNil)
			So(enqueued, ShouldEqual, 0)
			So(rejected, ShouldEqual, 2)
		})

		Convey("When listing holders fails", func() {
			bad := NewSweeper(holders{err: errors.New("db down")}, c, time.Second, logger.Nop())
			_, _, err := bad.RunOnce(ctx)
			So(err, ShouldNotBeNil)
		})

		Convey("When the loop is started", func() {
			s.Start(ctx)
			deadline := time.Now().Add(2 * time.Second)
			for c.len() < 2 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			s.Stop()
			s.Stop()

			Convey("Then sweeps are enqueued on every tick until stopped", func() {
				So(c.len(), ShouldBeGreaterThanOrEqualTo, 2)
			})
		})

		Convey("When the interval is disabled", func() {
			off := NewSweeper(holders{ids: []int64{1}}, c, 0, logger.Nop())
			off.Start(ctx)
			off.Stop()
			So(c.len(), ShouldEqual, 0)
		})
	})
}
