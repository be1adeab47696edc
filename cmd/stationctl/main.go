// stationctl is a command-line client for the station's line-oriented
// USB command surface: it opens the serial port, sends id:command:arg
// lines, and prints the responses.
//
// Usage:
//
//	stationctl -device /dev/ttyACM0 [options] [command ...]
//
// Options:
//
//	-device string    Serial device path (required)
//	-baud int         Baud rate (default: 115200)
//	-timeout duration Serial port read timeout (default: 1s); the wait
//	                  for each response line is a fixed 2s
//
// With no command arguments, stationctl reads lines from stdin
// interactively, one command per line, until EOF or Ctrl+C.
//
// Examples:
//
//	stationctl -device /dev/ttyACM0 0:en:1
//	stationctl -device /dev/ttyACM0 0:meas_t:?
//	stationctl -device /dev/ttyACM0
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jbclone/station/internal/logging"
	"github.com/jbclone/station/internal/serialio"
)

func main() {
	device := flag.String("device", "", "Serial device path (required)")
	baud := flag.Int("baud", 115200, "Baud rate")
	timeout := flag.Duration("timeout", time.Second, "Serial port read timeout")
	flag.Parse()

	if *device == "" {
		fmt.Fprintln(os.Stderr, "Error: -device is required")
		flag.Usage()
		os.Exit(1)
	}

	log := logging.New("stationctl")
	log.SetLevel(logging.WARN)

	port := serialio.New(*device, *baud, *timeout, log)
	if err := port.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", *device, err)
		os.Exit(1)
	}
	defer port.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		port.Close()
		os.Exit(130)
	}()

	commands := flag.Args()
	if len(commands) > 0 {
		for _, cmd := range commands {
			runOne(port, cmd)
		}
		return
	}

	runInteractive(port)
}

// runOne sends a single command line and prints its response.
func runOne(port *serialio.Port, line string) {
	if err := port.Write(line + "\n"); err != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", err)
		return
	}
	select {
	case resp, ok := <-port.Lines():
		if !ok {
			fmt.Fprintln(os.Stderr, "port closed")
			return
		}
		fmt.Println(resp)
	case <-time.After(2 * time.Second):
		fmt.Fprintln(os.Stderr, "timeout waiting for response")
	}
}

// runInteractive reads command lines from stdin until EOF, printing
// each response as it arrives.
func runInteractive(port *serialio.Port) {
	fmt.Println("stationctl interactive mode. Type id:command:arg, Ctrl+D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		runOne(port, line)
	}
}
