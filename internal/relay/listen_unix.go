//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package relay

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenTCP creates the listening socket by hand so the backlog passed to
// listen(2) is the configured one rather than the kernel default.
func listenTCP(addr string, backlog int) (*net.TCPListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcpAddr.Zone != "" {
		return listenTCPFallback(addr)
	}

	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa.Addr[:], ip4)
		return bindAndListen(unix.AF_INET, sa, backlog, false)
	}

	if len(tcpAddr.IP) == 0 {
		// Wildcard: prefer a dual-stack socket, fall back to IPv4 only.
		ln, err := bindAndListen(unix.AF_INET6, &unix.SockaddrInet6{Port: tcpAddr.Port}, backlog, true)
		if err == nil {
			return ln, nil
		}
		return bindAndListen(unix.AF_INET, &unix.SockaddrInet4{Port: tcpAddr.Port}, backlog, false)
	}

	sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa.Addr[:], tcpAddr.IP.To16())
	return bindAndListen(unix.AF_INET6, sa, backlog, false)
}

func bindAndListen(family int, sa unix.Sockaddr, backlog int, dualStack bool) (*net.TCPListener, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if dualStack {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	// FileListener dups the descriptor, so the file is closed either way.
	f := os.NewFile(uintptr(fd), "tcp-listener")
	ln, err := net.FileListener(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	tl, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	return tl, nil
}
