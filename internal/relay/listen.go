package relay

import (
	"context"
	"fmt"
	"net"
)

func listenTCPFallback(addr string) (*net.TCPListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
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
