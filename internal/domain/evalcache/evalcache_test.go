package evalcache

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/wolfinder/badges/internal/domain/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func results(slugs ...string) []model.EvaluationResult {
	out := make([]model.EvaluationResult, len(slugs))
	for i, s := range slugs {
		out[i] = model.EvaluationResult{BadgeID: s, MissingRequirements: []string{}}
	}
	return out
}

func TestMemoryCache(t *testing.T) {
	Convey("Given a memory cache with a controlled clock", t, func() {
		ctx := context.Background()
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := NewMemoryCache(WithClock(clock.Now), WithTTL(5*time.Minute))

		Convey("When nothing was stored", func() {
			_, ok := c.Get(ctx, 1)
			So(ok, ShouldBeFalse)
		})

		Convey("When a batch is stored", func() {
			c.Set(ctx, 1, results("primo-cliente", "eccellenza"))

			Convey("Then it is returned while fresh", func() {
				clock.Advance(4*time.Minute + 59*time.Second)
				got, ok := c.Get(ctx, 1)
				So(ok, ShouldBeTrue)
				So(len(got), ShouldEqual, 2)
				So(got[0].BadgeID, ShouldEqual, "primo-cliente")
			})

			Convey("Then it expires after the TTL", func() {
				clock.Advance(5 * time.Minute)
				_, ok := c.Get(ctx, 1)
				So(ok, ShouldBeFalse)
				So(c.Sweep(), ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 0)
			})

			Convey("Then invalidation drops it immediately", func() {
				c.Invalidate(ctx, 1)
				_, ok := c.Get(ctx, 1)
				So(ok, ShouldBeFalse)
			})

			Convey("Then callers cannot mutate the cached copy", func() {
				got, _ := c.Get(ctx, 1)
				got[0].BadgeID = "changed"
				again, _ := c.Get(ctx, 1)
				So(again[0].BadgeID, ShouldEqual, "primo-cliente")
			})

			Convey("Then other professionals are unaffected", func() {
				c.Set(ctx, 2, results("veterano"))
				c.Invalidate(ctx, 1)
				_, ok := c.Get(ctx, 2)
				So(ok, ShouldBeTrue)
				So(c.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestMemoryCacheConcurrency(t *testing.T) {
	Convey("Given concurrent writers and readers", t, func() {
		ctx := context.Background()
		c := NewMemoryCache()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					c.Set(ctx, id, results("primo-cliente"))
					c.Get(ctx, id)
					if j%10 == 0 {
						c.Invalidate(ctx, id)
					}
				}
			}(int64(i))
		}
		wg.Wait()
		So(c.Len(), ShouldBeLessThanOrEqualTo, 16)
	})
}

func TestJanitorLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given a cache with a janitor", t, func() {
		clock := &fakeClock{now: time.Now()}
		c := NewMemoryCache(WithClock(clock.Now), WithTTL(time.Second), WithCleanupInterval(5*time.Millisecond))
		c.Set(context.Background(), 1, results("primo-cliente"))
		clock.Advance(2 * time.Second)

		Convey("Then expired entries are swept in the background", func() {
			deadline := time.Now().Add(2 * time.Second)
			for c.Len() > 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(c.Len(), ShouldEqual, 0)
		})

		So(c.Close(), ShouldBeNil)
		So(c.Close(), ShouldBeNil)
	})
}

func TestNop(t *testing.T) {
	Convey("Given the nop cache", t, func() {
		var c Cache = Nop{}
		c.Set(context.Background(), 1, results("x"))
		_, ok := c.Get(context.Background(), 1)
		So(ok, ShouldBeFalse)
		So(c.Len(), ShouldEqual, 0)
	})
}
