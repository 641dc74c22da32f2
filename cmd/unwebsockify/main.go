// Command unwebsockify accepts TCP clients and relays them to a WebSocket URL.
package main

import "github.com/julienstroheker/wsockify/client/cmd"

func main() {
	cmd.Execute()
}
