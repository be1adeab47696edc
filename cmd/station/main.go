// station is the process entrypoint for the soldering station control
// core: it loads configuration, opens the persisted record store and
// the USB/HMI serial transports, and runs the main control loop until
// interrupted.
//
// Usage:
//
//	station -config station.yaml
//
// Options:
//
//	-config string   Station configuration file (required)
//	-logfile string  Log file path (default: stderr)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jbclone/station/internal/config"
	"github.com/jbclone/station/internal/hmi"
	"github.com/jbclone/station/internal/logging"
	"github.com/jbclone/station/internal/persist"
	"github.com/jbclone/station/internal/serialio"
	"github.com/jbclone/station/internal/station"
)

func main() {
	configFile := flag.String("config", "", "Station configuration file (required)")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	flag.Parse()

	log := logging.New("station")

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetWriter(f)
	}

	log.Info("station control core starting")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("failed to load config %s: %v", *configFile, err)
		os.Exit(1)
	}
	log.Info("loaded config: %d channel(s), persist path %s", len(cfg.Channels), cfg.PersistPath)

	store, err := persist.NewFileStore(cfg.PersistPath, persist.RecordSize*len(cfg.Channels))
	if err != nil {
		log.Error("failed to open persistence store %s: %v", cfg.PersistPath, err)
		os.Exit(1)
	}

	hw := make([]station.Hardware, len(cfg.Channels))
	for i := range cfg.Channels {
		hw[i] = station.Hardware{
			Heater: &noopHeater{},
			TC:     &noopTC{},
			Stand:  &noopStand{},
		}
	}

	usbPort := serialio.New(cfg.USBSerial.Port, cfg.USBSerial.BaudRate, time.Duration(cfg.Timing.SerialReadTimeoutMs)*time.Millisecond, log.WithPrefix("usb"))
	if err := usbPort.Open(); err != nil {
		log.Error("failed to open USB serial port %s: %v", cfg.USBSerial.Port, err)
		os.Exit(1)
	}
	defer usbPort.Close()

	hmiPort := serialio.New(cfg.HMISerial.Port, cfg.HMISerial.BaudRate, time.Duration(cfg.Timing.SerialReadTimeoutMs)*time.Millisecond, log.WithPrefix("hmi"))
	if err := hmiPort.Open(); err != nil {
		log.Error("failed to open HMI serial port %s: %v", cfg.HMISerial.Port, err)
		os.Exit(1)
	}
	defer hmiPort.Close()

	hmiPusher := hmi.NewPusher(hmiWriter{hmiPort})
	hmiReaderFactory := func(eval hmi.Evaluator) *hmi.Reader {
		return hmi.NewReader(newHMIPipe(hmiPort, log), hmiPusher, eval)
	}

	st := station.New(cfg, store, hw, &noopPin{}, usbPort.Lines(), usbPort.Write, hmiPusher, hmiReaderFactory, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("entering main loop")
	st.Run(ctx)

	log.Info("saving all channels before exit")
	st.SaveAll()
	if err := store.Flush(); err != nil {
		log.Error("failed to flush persistence store: %v", err)
	}
	log.Info("station stopped")
}

// noopHeater/noopTC/noopStand are placeholders for the board-specific
// GPIO/ADC bindings spec §1 treats as an out-of-scope external
// collaborator; a real deployment supplies its own implementations
// wired to the actual hardware.
type noopHeater struct{}

func (noopHeater) SetHigh() {}
func (noopHeater) SetLow()  {}

type noopTC struct{}

func (noopTC) ReadRaw() (int, bool) { return 0, false }

type noopStand struct{}

func (noopStand) IsLow() bool { return false }

type noopPin struct{}

func (noopPin) SetHigh() {}
func (noopPin) SetLow()  {}

type hmiWriter struct{ port *serialio.Port }

func (w hmiWriter) Write(p []byte) (int, error) {
	if err := w.port.Write(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// newHMIPipe bridges serialio.Port's newline-delimited line channel
// back into a raw io.Reader, re-appending the triple-0xFF terminator
// each line's framing implied, so hmi.Reader's own splitOnTripleFF
// scanner sees the frame boundaries spec §6 defines.
func newHMIPipe(port *serialio.Port, log *logging.Logger) io.Reader {
	r, w := io.Pipe()
	go func() {
		for line := range port.Lines() {
			if _, err := io.WriteString(w, line); err != nil {
				w.CloseWithError(err)
				return
			}
			if _, err := w.Write([]byte{0xFF, 0xFF, 0xFF}); err != nil {
				w.CloseWithError(err)
				return
			}
		}
		w.Close()
	}()
	return r
}
