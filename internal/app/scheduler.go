package app

import "time"

// Timer is a pending scheduled call
type Timer interface {
	Stop() bool
}

// Scheduler creates round timers. Tests swap it for one they fire by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the wall clock
type SystemScheduler struct{}

// AfterFunc implements Scheduler
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
