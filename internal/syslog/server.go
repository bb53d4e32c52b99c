package syslog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"logsift/internal/parser"
	"logsift/internal/worker"
)

// Sink receives decoded lines.
type Sink interface {
	Submit(ctx context.Context, job worker.Job) error
}

// SyslogServer accepts BSD syslog over UDP and newline-framed TCP on the
// same address.
type SyslogServer struct {
	Name    string
	Addr    string
	Decoder parser.Decoder

	udp net.PacketConn
	tcp net.Listener
	wg  sync.WaitGroup
}

func NewSyslogServer(name, addr string, dec parser.Decoder) *SyslogServer {
	return &SyslogServer{Name: name, Addr: addr, Decoder: dec}
}

// Start binds both listeners and serves until ctx is done. It returns once
// the sockets are open.
func (s *SyslogServer) Start(ctx context.Context, sink Sink) error {
	udp, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return fmt.Errorf("syslog udp listen %s: %w", s.Addr, err)
	}
	tcp, err := net.Listen("tcp", s.Addr)
	if err != nil {
		udp.Close()
		return fmt.Errorf("syslog tcp listen %s: %w", s.Addr, err)
	}
	s.udp, s.tcp = udp, tcp
	log.Printf("Syslog: listening on udp %s and tcp %s", udp.LocalAddr(), tcp.Addr())

	s.wg.Add(2)
	go s.serveUDP(ctx, sink)
	go s.serveTCP(ctx, sink)
	go func() {
		<-ctx.Done()
		udp.Close()
		tcp.Close()
	}()
	return nil
}

// Wait blocks until both listeners have shut down.
func (s *SyslogServer) Wait() { s.wg.Wait() }

// UDPAddr and TCPAddr report the bound addresses after Start.
func (s *SyslogServer) UDPAddr() net.Addr { return s.udp.LocalAddr() }
func (s *SyslogServer) TCPAddr() net.Addr { return s.tcp.Addr() }

func (s *SyslogServer) serveUDP(ctx context.Context, sink Sink) {
	defer s.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := s.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Syslog: udp read error: %v", err)
			continue
		}
		// One datagram may carry several newline-separated messages.
		for _, record := range strings.Split(string(buf[:n]), "\n") {
			s.handle(ctx, sink, record)
		}
	}
}

func (s *SyslogServer) serveTCP(ctx context.Context, sink Sink) {
	defer s.wg.Done()
	var conns sync.WaitGroup
	defer conns.Wait()
	for {
		conn, err := s.tcp.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Syslog: tcp accept error: %v", err)
			continue
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			s.handleConn(ctx, conn, sink)
		}()
	}
}

func (s *SyslogServer) handleConn(ctx context.Context, conn net.Conn, sink Sink) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	err := parser.ReadRecords(conn, func(record string) bool {
		s.handle(ctx, sink, record)
		return true
	})
	if err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("Syslog: tcp read from %s: %v", conn.RemoteAddr(), err)
	}
}

func (s *SyslogServer) handle(ctx context.Context, sink Sink, record string) {
	line, ok := s.Decoder.Decode(record)
	if !ok {
		return
	}
	if err := sink.Submit(ctx, worker.Job{Source: s.Name, Line: line}); err != nil && ctx.Err() == nil {
		log.Printf("Syslog: submit: %v", err)
	}
}
