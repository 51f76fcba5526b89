package extension

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
)

const writeTimeout = 5 * time.Second

// peer is one accepted WebSocket connection. Writes are serialized so that
// control replies and broadcast frames never interleave on the wire.
type peer struct {
	conn net.Conn
	addr string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, addr: conn.RemoteAddr().String()}
}

// readMessage returns the next complete data message. Control frames are
// answered inline; a close frame yields io.EOF.
func (p *peer) readMessage() ([]byte, error) {
	var message []byte
	for {
		frame, err := ws.ReadFrame(p.conn)
		if err != nil {
			return nil, err
		}
		if frame.Header.Masked {
			frame = ws.UnmaskFrameInPlace(frame)
		}
		switch frame.Header.OpCode {
		case ws.OpPing:
			if err := p.writeFrame(ws.NewPongFrame(frame.Payload)); err != nil {
				return nil, err
			}
			continue
		case ws.OpPong:
			continue
		case ws.OpClose:
			_ = p.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
			return nil, io.EOF
		}
		message = append(message, frame.Payload...)
		if frame.Header.Fin {
			return message, nil
		}
	}
}

func (p *peer) writeText(data []byte) error {
	return p.writeFrame(ws.NewTextFrame(data))
}

func (p *peer) writeFrame(frame ws.Frame) error {
	wire, err := ws.CompileFrame(frame)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = p.conn.Write(wire)
	return err
}

// close sends a normal closure frame and releases the connection.
func (p *peer) close() error {
	var err error
	p.closeOnce.Do(func() {
		_ = p.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		err = p.conn.Close()
	})
	return err
}
