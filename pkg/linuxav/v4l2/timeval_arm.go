//go:build linux && arm

package v4l2

import "time"

type v4l2Timeval struct {
	sec  int32
	usec int32
}

func (tv v4l2Timeval) duration() time.Duration {
	return time.Duration(tv.sec)*time.Second + time.Duration(tv.usec)*time.Microsecond
}

func makeTimeval(d time.Duration) v4l2Timeval {
	return v4l2Timeval{
		sec:  int32(d / time.Second),
		usec: int32((d % time.Second) / time.Microsecond),
	}
}
