// Command websockify accepts WebSocket clients and relays them to a TCP target.
package main

import "github.com/julienstroheker/wsockify/gateway/cmd"

func main() {
	cmd.Execute()
}
