package bufpool

import (
	"bytes"
	"fmt"
)

func appendf(dst []byte, format string, args ...interface{}) []byte {
	if len(args) == 0 {
		return append(dst, format...)
	}
	return append(dst, fmt.Sprintf(format, args...)...)
}

func indexBytes(data, sub []byte) int     { return bytes.Index(data, sub) }
func lastIndexBytes(data, sub []byte) int { return bytes.LastIndex(data, sub) }
