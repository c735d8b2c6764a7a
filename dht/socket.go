package dht

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// socket owns the single non-blocking UDP/IPv4 endpoint the actor thread
// reads and writes. All I/O on it happens from one goroutine only.
type socket struct {
	conn *net.UDPConn
}

// maxDatagram is comfortably above any KRPC message this node sends or
// accepts; bigger inbound reads are truncated by ReadFromUDP and ignored.
const maxDatagram = 4096

func bindSocket(port int) (*socket, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dht: bind failed")
	}
	// Deadline-based reads approximate non-blocking try_recv: tick() calls
	// tryRecv once per pass and never wants to stall the actor loop.
	return &socket{conn: conn}, nil
}

// send writes one datagram. It never blocks past the OS write buffer.
func (s *socket) send(to *net.UDPAddr, b []byte) error {
	_, err := s.conn.WriteToUDP(b, to)
	return err
}

// tryRecv reads at most one pending datagram without blocking. It returns
// (nil, nil, nil) if nothing is currently available.
func (s *socket) tryRecv() ([]byte, *net.UDPAddr, error) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, nil, err
	}
	buf := make([]byte, maxDatagram)
	n, from, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return buf[:n], from, nil
}

// localAddr reports the bound address, including an ephemeral port if the
// caller asked for port 0.
func (s *socket) localAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *socket) close() error {
	return s.conn.Close()
}
