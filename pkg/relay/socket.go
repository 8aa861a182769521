package relay

import (
	"context"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"lol.mleku.dev/log"
)

// socket is the thin websocket transport a RelayConnection dials over. It
// only knows how to send and receive whole text frames; interpreting their
// contents is the caller's job (the Parser worker, out of this package's
// scope per spec.md §1).
//
// Grounded on pkg/protocol/ws/connection.go's NewConnection/WriteMessage/
// ReadMessage, simplified to gobwas/ws's higher-level wsutil helpers since
// per-message compression negotiation is not part of this spec's core.
type socket struct {
	conn net.Conn
}

// dialSocket opens a client websocket connection to url.
func dialSocket(ctx context.Context, url string) (*socket, error) {
	conn, _, _, err := ws.DefaultDialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return &socket{conn: conn}, nil
}

// writeText sends a single text frame.
func (s *socket) writeText(data []byte) error {
	return wsutil.WriteClientText(s.conn, data)
}

// setIdleDeadline arms (or, given a non-positive timeout, clears) a read
// deadline so a relay that goes silent for longer than timeout surfaces as a
// socket error out of readText rather than hanging forever.
func (s *socket) setIdleDeadline(timeout time.Duration) error {
	if timeout <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(timeout))
}

// readText blocks for the next text frame, discarding control frames.
func (s *socket) readText() ([]byte, error) {
	for {
		data, opCode, err := wsutil.ReadServerData(s.conn)
		if err != nil {
			return nil, err
		}
		if opCode.IsControl() {
			continue
		}
		if opCode == ws.OpText || opCode == ws.OpBinary {
			return data, nil
		}
	}
}

func (s *socket) close() error {
	return s.conn.Close()
}

func logSocketErr(url string, err error) {
	if err != nil {
		log.D.F("relay %s: socket error: %v", url, err)
	}
}
