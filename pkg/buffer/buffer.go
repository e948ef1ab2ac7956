package buffer

import (
	"bytes"

	"github.com/oxtoacart/bpool"
)

type BufferManager interface {
	Get() *bytes.Buffer
	Put(*bytes.Buffer)
}

type OnDemandBufferManager struct{}

func (bm *OnDemandBufferManager) Get() *bytes.Buffer {
	return &bytes.Buffer{}
}

func (bm *OnDemandBufferManager) Put(buf *bytes.Buffer) {
}

// New returns a pooled manager when both sizes are positive, an on-demand one otherwise.
func New(poolSize, bufferSize int) BufferManager {
	if poolSize > 0 && bufferSize > 0 {
		return bpool.NewSizedBufferPool(poolSize, bufferSize)
	}
	return &OnDemandBufferManager{}
}
