//go:build js && wasm

package main

import (
	"io"
	"sync"
	"syscall/js"
)

// WSReadWriteCloser is a browser WebSocket as an io.ReadWriteCloser.
// Every Write is sent as one binary message; Read returns message bytes in order.
type WSReadWriteCloser struct {
	ws js.Value

	mu     sync.Mutex // needed because js onClose event can preempt Write() call
	closed bool
	err    error

	pending [][]byte      // received messages not read yet
	notify  chan struct{} // signalled when pending grows
	done    chan struct{} // closed with the socket
	openCh chan struct{} // closed when connected or failed

	// read buffer for partial reads
	buf []byte
}

func NewWSReadWriteCloser(ws js.Value) *WSReadWriteCloser {
	c := &WSReadWriteCloser{
		ws:     ws,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		openCh: make(chan struct{}),
	}

	ws.Set("binaryType", "arraybuffer")

	ws.Set("onopen", js.FuncOf(func(js.Value, []js.Value) any {
		c.markOpen()
		return nil
	}))

	ws.Set("onerror", js.FuncOf(func(js.Value, []js.Value) any {
		c.mu.Lock()
		c.err = io.ErrUnexpectedEOF
		c.mu.Unlock()
		c.markOpen()
		return nil
	}))

	ws.Set("onmessage", js.FuncOf(func(this js.Value, args []js.Value) any {
		jsDataToBytes(args[0].Get("data"), c.deliver)
		return nil
	}))

	ws.Set("onclose", js.FuncOf(func(js.Value, []js.Value) any {
		logScreenf("connection closed")
		c.shutdown()
		return nil
	}))

	return c
}

func (c *WSReadWriteCloser) markOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.openCh:
	default:
		close(c.openCh)
	}
}

// deliver queues a received message. It is called from JS callbacks and never blocks.
func (c *WSReadWriteCloser) deliver(b []byte) {
	c.mu.Lock()
	c.pending = append(c.pending, b)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// next returns the oldest unread message, waiting for one.
func (c *WSReadWriteCloser) next() ([]byte, bool) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			msg := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return msg, true
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-c.done:
			return nil, false
		}
	}
}

// shutdown marks the connection closed, reporting whether it was open.
func (c *WSReadWriteCloser) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	select {
	case <-c.openCh:
	default:
		close(c.openCh)
	}
	return true
}

func (c *WSReadWriteCloser) Read(p []byte) (int, error) {
	// First, drain existing buffer
	if len(c.buf) == 0 {
		// No buffered data -> wait for next message
		msg, ok := c.next()
		if !ok {
			return 0, io.EOF
		}
		c.buf = msg
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]

	return n, nil
}

func (c *WSReadWriteCloser) Write(p []byte) (int, error) {
	if err := c.waitOpen(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, io.ErrClosedPipe
	}

	u8 := js.Global().Get("Uint8Array").New(len(p))
	js.CopyBytesToJS(u8, p)

	c.ws.Call("send", u8)
	return len(p), nil
}

func (c *WSReadWriteCloser) Close() error {
	if c.shutdown() {
		c.ws.Call("close")
	}
	return nil
}

func (c *WSReadWriteCloser) waitOpen() error {
	<-c.openCh

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if c.closed {
		return io.ErrClosedPipe
	}
	return nil
}

func jsDataToBytes(data js.Value, deliver func([]byte)) {
	// Uint8Array / Uint8ClampedArray
	if data.InstanceOf(js.Global().Get("Uint8Array")) ||
		data.InstanceOf(js.Global().Get("Uint8ClampedArray")) {

		b := make([]byte, data.Get("byteLength").Int())
		js.CopyBytesToGo(b, data)
		deliver(b)
		return
	}

	// ArrayBuffer
	if data.InstanceOf(js.Global().Get("ArrayBuffer")) {
		u8 := js.Global().Get("Uint8Array").New(data)
		b := make([]byte, u8.Get("byteLength").Int())
		js.CopyBytesToGo(b, u8)
		deliver(b)
		return
	}

	// Blob, read asynchronously
	if data.InstanceOf(js.Global().Get("Blob")) {
		promise := data.Call("arrayBuffer")
		var then js.Func
		then = js.FuncOf(func(this js.Value, args []js.Value) any {
			defer then.Release()
			u8 := js.Global().Get("Uint8Array").New(args[0])
			b := make([]byte, u8.Get("byteLength").Int())
			js.CopyBytesToGo(b, u8)
			deliver(b)
			return nil
		})
		promise.Call("then", then)
		return
	}

	logScreenf("unsupported message type %s", data.Type())
}
