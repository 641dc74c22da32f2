//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package relay

import "net"

// listenTCP uses the platform default backlog where raw sockets are unavailable
func listenTCP(addr string, _ int) (*net.TCPListener, error) {
	return listenTCPFallback(addr)
}
