package main

import (
	"bytes"
	"machine"
	"sync"
	"time"

	"libdb.so/tollglow/ledserial"
)

// hostLink is the serial connection to the host. Reads block until at least
// one byte arrives. Packets are written whole under a lock, because button
// edges are reported from their own goroutine while the main loop acks.
type hostLink struct {
	port machine.Serialer

	wmu sync.Mutex
	buf bytes.Buffer
}

func newHostLink(port machine.Serialer) *hostLink {
	return &hostLink{port: port}
}

// Read implements io.Reader.
func (l *hostLink) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	for l.port.Buffered() == 0 {
		// Polling is all the USB CDC driver offers.
		time.Sleep(time.Millisecond)
	}

	n := min(len(b), l.port.Buffered())
	for i := 0; i < n; i++ {
		c, err := l.port.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}
	return n, nil
}

// Send writes p to the host as one uninterrupted frame.
func (l *hostLink) Send(p ledserial.OutgoingPacket) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.buf.Reset()
	if err := ledserial.WriteOutgoingPacket(&l.buf, p); err != nil {
		return err
	}

	_, err := l.port.Write(l.buf.Bytes())
	return err
}
