package opticalswitch

import "time"

// Clock 时间源
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock 系统时钟
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }
