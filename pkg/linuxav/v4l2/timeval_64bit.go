//go:build linux && (amd64 || arm64)

package v4l2

import "time"

type v4l2Timeval struct {
	sec  int64
	usec int64
}

func (tv v4l2Timeval) duration() time.Duration {
	return time.Duration(tv.sec)*time.Second + time.Duration(tv.usec)*time.Microsecond
}

func makeTimeval(d time.Duration) v4l2Timeval {
	return v4l2Timeval{
		sec:  int64(d / time.Second),
		usec: int64((d % time.Second) / time.Microsecond),
	}
}
