package prober

import "time"

// nowUnixMilli is a seam so tests can pin the encode timestamp.
var nowUnixMilli = func() int64 {
	return time.Now().UnixMilli()
}
