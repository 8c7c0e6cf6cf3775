package schedule

import (
	"context"
	"fmt"
	"time"
)

// Paris: 谜题发布时区。由 cmd 通过 time/tzdata 保证可加载。
const Paris = "Europe/Paris"

// Release 返回 now 在 loc 时区当日 hour:00 的时刻。
func Release(now time.Time, hour int, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), hour, 0, 0, 0, loc)
}

// Until 返回距当日发布时刻的剩余时长；已过发布时刻则为 0。
func Until(now time.Time, hour int, loc *time.Location) time.Duration {
	d := Release(now, hour, loc).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Waiter 等待直到下一次发布。Now/Sleep 可替换以便测试。
type Waiter struct {
	Hour     int
	Location *time.Location
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

// NewWaiter 以时区名构造等待器。
func NewWaiter(hour int, tz string) (*Waiter, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("schedule: hour %d out of range", hour)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule: load location %q: %w", tz, err)
	}
	return &Waiter{Hour: hour, Location: loc, Now: time.Now, Sleep: Sleep}, nil
}

// Next 返回需要等待到的时刻；无需等待时 ok=false。
func (w *Waiter) Next() (at time.Time, ok bool) {
	now := w.Now()
	d := Until(now, w.Hour, w.Location)
	if d == 0 {
		return time.Time{}, false
	}
	return now.Add(d), true
}

// Wait 阻塞直到发布时刻或 ctx 结束。
func (w *Waiter) Wait(ctx context.Context) error {
	at, ok := w.Next()
	if !ok {
		return nil
	}
	return w.Sleep(ctx, at.Sub(w.Now()))
}

// Sleep: 可取消的 sleep。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
