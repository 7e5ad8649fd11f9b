package main

import (
	"fmt"
	"os"

	"github.com/sheerbytes/streamplan/internal/cli/receiver"
	"github.com/sheerbytes/streamplan/internal/cli/sender"
	"github.com/sheerbytes/streamplan/internal/cli/watcher"
	"github.com/sheerbytes/streamplan/internal/termio"
)

const version = "v0.1.0"

func main() {
	termio.Init()
	defer termio.Flush()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}
	if hasVersionFlag(args[:1]) {
		fmt.Fprintln(termio.Stdout(), "streamplan", version)
		return
	}

	cmdName := args[0]
	switch cmdName {
	case "send":
		sender.Run(args[1:])
	case "receive":
		receiver.Run(args[1:])
	case "watch":
		watcher.Run(args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(termio.Stderr(), "unknown command: %s\n", cmdName)
		printUsage()
		termio.Flush()
		os.Exit(2)
	}
}

func printUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: streamplan <command> [args]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  send     stream files to one or more peers as a single plan")
	fmt.Fprintln(w, "  receive  accept streaming sessions from peers")
	fmt.Fprintln(w, "  watch    print the event feed of a running node")
	fmt.Fprintln(w, "quick examples:")
	fmt.Fprintln(w, "  streamplan receive -listen :7443 -out ./data")
	fmt.Fprintln(w, "  streamplan send -peer 10.0.0.2:7443 -peer 10.0.0.3:7443 -description repair ./sstables")
	fmt.Fprintln(w, "  streamplan watch -addr 127.0.0.1:7480")
	fmt.Fprintln(w, "to learn detailed usage:")
	fmt.Fprintln(w, "  streamplan send --help")
	fmt.Fprintln(w, "  streamplan receive --help")
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" || arg == "version" {
			return true
		}
	}
	return false
}
