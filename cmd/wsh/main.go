// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Wsh is the client for a wshd terminal session daemon: it lists,
// attaches to, and observes sessions over wshd's HTTP/WebSocket
// control API.
package main

import (
	"fmt"
	"os"

	"github.com/wsh-dev/wsh/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "attach":
		err = runAttach(os.Args[2:])
	case "ls":
		err = runLs(os.Args[2:])
	case "top":
		err = runTop(os.Args[2:])
	case "--version", "version":
		fmt.Println(version.Full())
		return
	case "--help", "-h", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "wsh: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "wsh: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `wsh - terminal session client

USAGE
    wsh attach <name> [flags]   Attach to a session's raw byte stream
    wsh ls [flags]              List sessions on a daemon
    wsh top [flags]             Live dashboard of sessions on a daemon

Set WSH_DAEMON to the daemon's base URL (default: http://127.0.0.1:7670).
Set WSH_TOKEN for bearer-token authentication.
`)
}

func daemonURL() string {
	if v := os.Getenv("WSH_DAEMON"); v != "" {
		return v
	}
	return "http://127.0.0.1:7670"
}

func daemonToken() string {
	return os.Getenv("WSH_TOKEN")
}
