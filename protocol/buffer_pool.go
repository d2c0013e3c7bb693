package protocol

import (
	"bytes"
	"sync"
)

// maxPooledFrame - encode buffers grown past this are dropped instead of pooled
const maxPooledFrame = 1024 * 1024

var frameBuffers = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// getFrameBuffer returns an empty buffer with room for at least sizeHint bytes.
func getFrameBuffer(sizeHint int) *bytes.Buffer {
	buf := frameBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	if sizeHint > 0 {
		buf.Grow(sizeHint)
	}
	return buf
}

func putFrameBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledFrame {
		return
	}
	frameBuffers.Put(buf)
}
