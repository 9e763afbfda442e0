// pool.go: Scratch buffer pooling for the encryption hot paths.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import "sync"

// Two pool tiers cover everything this engine allocates repeatedly: nonces,
// salts and keys on the small tier, serialized env bundles on the large one.
var (
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 32) // nonces (12), keys and salts (32)
			return &buf
		},
	}

	bundleBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 4*1024) // typical serialized env file
			return &buf
		},
	}
)

// getBuffer retrieves a fixed-size scratch buffer. Sizes above the small
// tier are allocated directly.
func getBuffer(size int) *[]byte {
	if size <= 32 {
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	}
	buf := make([]byte, size)
	return &buf
}

// putBuffer zeroes and returns a buffer to the pool. Buffers that did not
// come from the small tier are dropped for the GC.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	clearBuffer((*buf)[:cap(*buf)])
	if cap(*buf) == 32 {
		smallBufferPool.Put(buf)
	}
}

// getBundleBuffer retrieves a growable buffer for ciphertext assembly.
func getBundleBuffer() []byte {
	buf := bundleBufferPool.Get().(*[]byte)
	return (*buf)[:0]
}

// putBundleBuffer zeroes and returns a bundle buffer to the pool.
// Oversized buffers are dropped so the pool stays close to its tier size.
func putBundleBuffer(buf []byte) {
	if cap(buf) == 0 || cap(buf) > 64*1024 {
		return
	}
	clearBuffer(buf[:cap(buf)])
	bundleBufferPool.Put(&buf)
}

// clearBuffer zeroes a buffer before it returns to a pool. Plaintext and
// key material must never survive in pooled memory.
func clearBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
