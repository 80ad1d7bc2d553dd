// Package capture adapts infrastructure/capture/wire's frame codec to the
// application/captureagent.Source port, so the consumer-side process can
// read the agent's event stream off the control socket without depending
// on net or the wire format directly.
package capture

import (
	"net"

	domcapture "tzrecorder/domain/capture"
	"tzrecorder/infrastructure/capture/wire"
)

// Source reads capture.Events off a connected control-socket conn, one
// wire.ReadFrame at a time (application/captureagent.Source).
type Source struct {
	conn net.Conn
}

// NewSource wraps an already-dialed control-socket connection.
func NewSource(conn net.Conn) *Source {
	return &Source{conn: conn}
}

// Next blocks until the next event frame arrives or the connection is
// closed.
func (s *Source) Next() (domcapture.Event, error) {
	return wire.ReadFrame(s.conn)
}

// Close closes the underlying connection.
func (s *Source) Close() error {
	return s.conn.Close()
}
