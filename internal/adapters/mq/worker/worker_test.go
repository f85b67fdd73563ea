package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/mq/queue"
	"github.com/okian/twinpot/internal/adapters/mq/worker"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

// recordingExecutor counts executions per task ID and can fail on demand.
type recordingExecutor struct {
	mu        sync.Mutex
	execs     map[string]int
	failFirst map[string]bool
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{
		execs:     make(map[string]int),
		failFirst: make(map[string]bool),
	}
}

func (e *recordingExecutor) Execute(ctx context.Context, t queue.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execs[t.ID]++
	if e.failFirst[t.ID] && e.execs[t.ID] == 1 {
		return errors.New("transient failure")
	}
	return nil
}

func (e *recordingExecutor) count(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execs[id]
}

func task(id string) queue.Task {
	return queue.Task{ID: id, Kind: queue.KindRefund, SessionID: uuid.New(), Wallet: "w", Amount: model.Coins(1)}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPool(t *testing.T) {
	ctx := context.Background()

	Convey("Given a worker pool over a queue", t, func() {
		q := queue.NewInMemoryQueue()
		exec := newRecordingExecutor()
		pool := worker.NewPool(q, exec, worker.WithWorkerCount(2))
		pool.Start(ctx)

		Reset(func() {
			_ = q.Close()
			pool.Stop()
		})

		Convey("When a task is enqueued", func() {
			So(q.Enqueue(ctx, task("t1")), ShouldBeTrue)

			Convey("Then it is executed once", func() {
				So(eventually(func() bool { return exec.count("t1") == 1 }), ShouldBeTrue)
			})
		})

		Convey("When the same task ID is enqueued twice", func() {
			So(q.Enqueue(ctx, task("dup")), ShouldBeTrue)
			So(eventually(func() bool { return exec.count("dup") == 1 }), ShouldBeTrue)
			So(q.Enqueue(ctx, task("dup")), ShouldBeTrue)

			Convey("Then the second delivery is skipped", func() {
				So(eventually(func() bool { return q.Len(ctx) == 0 }), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				So(exec.count("dup"), ShouldEqual, 1)
			})
		})

		Convey("When the first execution fails", func() {
			exec.mu.Lock()
			exec.failFirst["retry"] = true
			exec.mu.Unlock()

			So(q.Enqueue(ctx, task("retry")), ShouldBeTrue)
			So(eventually(func() bool { return exec.count("retry") == 1 }), ShouldBeTrue)

			Convey("Then a re-enqueue runs it again because failures are not marked applied", func() {
				So(q.Enqueue(ctx, task("retry")), ShouldBeTrue)
				So(eventually(func() bool { return exec.count("retry") == 2 }), ShouldBeTrue)
			})
		})
	})
}
