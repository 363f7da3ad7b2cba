// pkg/utils/usage.go

package utils

import (
	"fmt"
	"syscall"
	"time"
)

var started = time.Now()

// Clock returns the time since the process started.
func Clock() time.Duration {
	return time.Since(started)
}

// Usage is a snapshot of the wall clock and CPU time used by this process.
type Usage struct {
	Wall   time.Duration
	User   time.Duration
	System time.Duration
}

func tvDuration(tv syscall.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}

// GetUsage returns the current usage. CPU times are zero when they can not be read.
func GetUsage() Usage {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		GetLogger("logcache").Debugf("getrusage: %s", err)
		return Usage{Wall: Clock()}
	}
	return Usage{Wall: Clock(), User: tvDuration(ru.Utime), System: tvDuration(ru.Stime)}
}

// Since returns what was used after u was taken.
func (u Usage) Since() Usage {
	now := GetUsage()
	return Usage{Wall: now.Wall - u.Wall, User: now.User - u.User, System: now.System - u.System}
}

func (u Usage) String() string {
	return fmt.Sprintf("%s (user %.3fs, sys %.3fs)", u.Wall.Round(time.Millisecond), u.User.Seconds(), u.System.Seconds())
}
