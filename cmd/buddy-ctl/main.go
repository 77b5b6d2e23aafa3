package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"buddy/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", envOr("BUDDY_SOCKET", "/tmp/buddy.sock"), "Control socket path")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: buddy-ctl [-s socket] <record|stop|send TEXT|new|select ID|delete ID|voice on|off|health>")
		cli.PrintDefaults()
	}
	cli.Parse()

	cmd, arg := "record", ""
	if args := cli.Args(); len(args) > 0 {
		cmd = args[0]
		arg = strings.Join(args[1:], " ")
	}

	if err := ipc.SendCommand(*socket, cmd, arg); err != nil {
		fmt.Fprintln(os.Stderr, "buddy:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
