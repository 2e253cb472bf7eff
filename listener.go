package siesta

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// proxyProtocolSign is the signature of the PROXY protocol version 2.
var proxyProtocolSign = []byte{
	0x0d, 0x0a, 0x0d, 0x0a,
	0x00, 0x0d, 0x0a, 0x51,
	0x55, 0x49, 0x54, 0x0a,
}

// siestaListener implements net.Listener on top of a *net.TCPListener. It
// enables TCP keep-alive on every accepted connection and, when the owning
// Server is configured for it, transparently unwraps PROXY protocol v1/v2
// headers so RemoteAddr reflects the original client rather than the
// load balancer that relayed the connection.
type siestaListener struct {
	*net.TCPListener

	proxyEnabled            bool
	proxyReadHeaderTimeout  time.Duration
	allowedProxyRelayerNets []*net.IPNet
}

// newSiestaListener binds addr and wraps it per cfg's PROXY protocol
// settings.
func newSiestaListener(addr string, cfg Config) (*siestaListener, error) {
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	var nets []*net.IPNet
	for _, s := range cfg.ProxyRelayerIPWhitelist {
		if ip := net.ParseIP(s); ip != nil {
			switch {
			case ip.IsUnspecified():
				s = ip.String() + "/0"
			case ip.To4() != nil:
				s = ip.String() + "/32"
			case ip.To16() != nil:
				s = ip.String() + "/128"
			}
		}
		if _, ipNet, _ := net.ParseCIDR(s); ipNet != nil {
			nets = append(nets, ipNet)
		}
	}

	return &siestaListener{
		TCPListener:             nl.(*net.TCPListener),
		proxyEnabled:            cfg.ProxyEnabled,
		proxyReadHeaderTimeout:  cfg.ProxyReadHeaderTimeout,
		allowedProxyRelayerNets: nets,
	}, nil
}

// Accept implements net.Listener.
func (l *siestaListener) Accept() (net.Conn, error) {
	tc, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}

	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	tc.SetNoDelay(true)

	if !l.proxyEnabled {
		return tc, nil
	}

	proxyable := len(l.allowedProxyRelayerNets) == 0
	if !proxyable {
		host, _, _ := net.SplitHostPort(tc.RemoteAddr().String())
		ip := net.ParseIP(host)
		for _, ipNet := range l.allowedProxyRelayerNets {
			if ipNet.Contains(ip) {
				proxyable = true
				break
			}
		}
	}

	if !proxyable {
		return tc, nil
	}

	return &proxyConn{
		Conn:              tc,
		bufReader:         bufio.NewReader(tc),
		readHeaderOnce:    &sync.Once{},
		readHeaderTimeout: l.proxyReadHeaderTimeout,
	}, nil
}

// proxyConn wraps a net.Conn that may be speaking the PROXY protocol,
// substituting the relayed source/destination addresses for the
// connection's own once the header has been parsed.
type proxyConn struct {
	net.Conn

	bufReader         *bufio.Reader
	srcAddr           *net.TCPAddr
	dstAddr           *net.TCPAddr
	readHeaderOnce    *sync.Once
	readHeaderError   error
	readHeaderTimeout time.Duration
}

// Read implements net.Conn.
func (pc *proxyConn) Read(b []byte) (int, error) {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.readHeaderError != nil {
		return 0, pc.readHeaderError
	}
	return pc.bufReader.Read(b)
}

// LocalAddr implements net.Conn.
func (pc *proxyConn) LocalAddr() net.Addr {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.dstAddr != nil {
		return pc.dstAddr
	}
	return pc.Conn.LocalAddr()
}

// RemoteAddr implements net.Conn.
func (pc *proxyConn) RemoteAddr() net.Addr {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.srcAddr != nil {
		return pc.srcAddr
	}
	return pc.Conn.RemoteAddr()
}

// readHeader reads and parses a PROXY protocol v1 or v2 header. It is a
// no-op if the connection isn't actually speaking the protocol.
func (pc *proxyConn) readHeader() {
	if pc.readHeaderTimeout != 0 {
		pc.SetReadDeadline(time.Now().Add(pc.readHeaderTimeout))
		defer pc.SetReadDeadline(time.Time{})
	}

	defer func() {
		if pc.readHeaderError != nil && pc.readHeaderError != io.EOF {
			pc.Close()
			pc.bufReader = bufio.NewReader(pc.Conn)
		}
	}()

	isV1 := true
	for i := 0; i < 6; i++ { // len("PROXY ")
		b, err := pc.bufReader.Peek(i + 1)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			pc.readHeaderError = err
			return
		}
		if b[i] != "PROXY "[i] {
			isV1 = false
			break
		}
	}

	if isV1 {
		pc.readHeaderV1()
		return
	}
	pc.readHeaderV2()
}

func (pc *proxyConn) readHeaderV1() {
	header, err := pc.bufReader.ReadString('\n')
	if err != nil {
		pc.readHeaderError = err
		return
	}
	header = strings.TrimRight(header, "\r\n")

	parts := strings.Split(header, " ")
	if len(parts) != 6 {
		pc.readHeaderError = fmt.Errorf("siesta: malformed proxy header line: %s", header)
		return
	}

	switch parts[1] {
	case "TCP4", "TCP6":
	default:
		pc.readHeaderError = fmt.Errorf("siesta: unsupported proxy transport protocol: %s", parts[1])
		return
	}

	srcIP := net.ParseIP(parts[2])
	dstIP := net.ParseIP(parts[3])
	if srcIP == nil || dstIP == nil {
		pc.readHeaderError = fmt.Errorf("siesta: invalid proxy address in header: %s", header)
		return
	}

	srcPort, err := strconv.Atoi(parts[4])
	if err != nil {
		pc.readHeaderError = fmt.Errorf("siesta: invalid proxy source port: %s", parts[4])
		return
	}

	dstPort, err := strconv.Atoi(parts[5])
	if err != nil {
		pc.readHeaderError = fmt.Errorf("siesta: invalid proxy destination port: %s", parts[5])
		return
	}

	pc.srcAddr = &net.TCPAddr{IP: srcIP, Port: srcPort}
	pc.dstAddr = &net.TCPAddr{IP: dstIP, Port: dstPort}
}

func (pc *proxyConn) readHeaderV2() {
	for i := 0; i < len(proxyProtocolSign); i++ {
		b, err := pc.bufReader.Peek(i + 1)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			pc.readHeaderError = err
			return
		}
		if b[i] != proxyProtocolSign[i] {
			return
		}
	}

	if _, err := pc.bufReader.Discard(len(proxyProtocolSign)); err != nil {
		pc.readHeaderError = err
		return
	}

	b, err := pc.bufReader.ReadByte()
	if err != nil {
		pc.readHeaderError = err
		return
	}
	if b&0xf0 != 0x20 {
		pc.readHeaderError = errors.New("siesta: unsupported proxy protocol version")
		return
	} else if b&0x0f != 0x01 {
		pc.readHeaderError = errors.New("siesta: unsupported proxy command")
		return
	}

	b, err = pc.bufReader.ReadByte()
	if err != nil {
		pc.readHeaderError = err
		return
	}

	var expectedLen uint16
	switch b {
	case 0x11:
		expectedLen = 12
	case 0x21:
		expectedLen = 36
	default:
		pc.readHeaderError = errors.New("siesta: unsupported proxy address family/transport combination")
		return
	}

	var addrLen uint16
	if err := binary.Read(io.LimitReader(pc.bufReader, 2), binary.BigEndian, &addrLen); err != nil {
		pc.readHeaderError = fmt.Errorf("siesta: reading proxy address length: %w", err)
		return
	}
	if addrLen != expectedLen {
		pc.readHeaderError = fmt.Errorf("siesta: invalid proxy address length: %d", addrLen)
		return
	}

	var srcIP, dstIP net.IP
	switch addrLen {
	case 12:
		srcIP, dstIP = make(net.IP, 4), make(net.IP, 4)
	case 36:
		srcIP, dstIP = make(net.IP, 16), make(net.IP, 16)
	}
	srcPort, dstPort := make([]byte, 2), make([]byte, 2)

	fields := append(append(append(srcIP, dstIP...), srcPort...), dstPort...)
	if err := binary.Read(io.LimitReader(pc.bufReader, int64(addrLen)), binary.BigEndian, fields); err != nil {
		pc.readHeaderError = fmt.Errorf("siesta: reading proxy addresses/ports: %w", err)
		return
	}

	ipLen := len(srcIP)
	copy(srcIP, fields[:ipLen])
	copy(dstIP, fields[ipLen:2*ipLen])
	copy(srcPort, fields[2*ipLen:2*ipLen+2])
	copy(dstPort, fields[2*ipLen+2:2*ipLen+4])

	pc.srcAddr = &net.TCPAddr{IP: srcIP, Port: int(binary.BigEndian.Uint16(srcPort))}
	pc.dstAddr = &net.TCPAddr{IP: dstIP, Port: int(binary.BigEndian.Uint16(dstPort))}
}
