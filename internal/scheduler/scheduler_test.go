package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)

	if got := s.nextTick(now); !got.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("对齐模式下一次应为 11:00, 实际 %s", got)
	}
	exact := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	if got := s.nextTick(exact); !got.Equal(exact.Add(time.Hour)) {
		t.Fatalf("整点时下一次应为下一个整点, 实际 %s", got)
	}
	if got := s.bucketStart(time.Date(2024, 5, 1, 11, 0, 3, 0, time.UTC)); !got.Equal(exact) {
		t.Fatalf("bucket 应截断到整点, 实际 %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 4 * time.Hour}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(4 * time.Hour)) {
		t.Fatalf("非对齐模式应为 now+interval, 实际 %s", got)
	}
}

func TestNewRejectsZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("interval 为 0 应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}

func TestRunOnStartAndCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			calls.Add(1)
			cancel()
			return errors.New("tick errors are logged, not returned")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run 未在取消后退出")
	}
	if calls.Load() != 1 {
		t.Fatalf("RunOnStart 应立即执行一次, 实际 %d", calls.Load())
	}
}

func testParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func TestCronRejectsBadSpec(t *testing.T) {
	c := NewCron(testParser(), time.UTC, zerolog.Nop())
	if err := c.Add("report", "not a cron", func(context.Context) error { return nil }); err == nil {
		t.Fatal("非法表达式应报错")
	}
	if !c.Next().IsZero() {
		t.Fatal("没有任务时 Next 应为零值")
	}
}

func TestCronRunsJob(t *testing.T) {
	c := NewCron(testParser(), time.UTC, zerolog.Nop())
	fired := make(chan struct{}, 1)
	if err := c.Add("report", "* * * * * *", func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("注册任务失败: %v", err)
	}
	if next := c.Next(); next.IsZero() || next.After(time.Now().Add(2*time.Second)) {
		t.Fatalf("启动前 Next 应为下一秒, 实际 %s", next)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("任务应在 3 秒内执行")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
}
