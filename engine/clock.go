package engine

import "time"

func defaultClockMillis() int64 {
	return time.Now().UnixMilli()
}
