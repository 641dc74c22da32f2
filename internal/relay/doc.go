// Package relay bridges two transports by copying bytes between paired
// connections.
//
// # Core Types
//
// Connection is one endpoint of a session: a TCP socket or a WebSocket
// adapted to io.ReadWriteCloser. WebSocket reads stream message payloads and
// report a close frame as io.EOF; each write becomes one binary message.
//
// Listener accepts inbound connections. TCPListener wraps a TCP socket bound
// with an explicit backlog; WebSocketListener is an http.Handler that upgrades
// requests and hands them to Accept.
//
// Dialer opens the outbound side of a session: TCPDialer for a fixed
// host:port, WebSocketDialer for a fixed URL.
//
// Relay runs the acceptance loop (Listen) and the per-connection duplex copy
// (Serve). Service owns one listener and one Relay and provides the
// start/stop lifecycle.
//
// # Errors
//
// Nothing a session does is returned to the caller. Dial and transfer
// failures go to the session ErrorHook, accept failures to the accept
// ErrorHook. Cancellation is never reported.
//
// # Usage Example
//
//	r := relay.New(&relay.Options{Dialer: relay.NewTCPDialer("localhost", 5900)})
//	svc := relay.NewService(r, func(context.Context) (relay.Listener, error) {
//	    return relay.ListenTCP("127.0.0.1:5901", relay.MinListenBacklog)
//	}, logger)
//
//	go func() { _ = svc.Start(ctx) }()
//	defer svc.Stop()
package relay
