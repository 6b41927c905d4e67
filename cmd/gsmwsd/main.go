// Command gsmwsd is the GSM dynamic-spectrum BTS controller daemon. It
// consumes a packet dissector's text stream, decodes measurement reports,
// and steers a local BTS onto channels that appear unused.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbts-tools/gsmws/hardware/bts"
	"github.com/openbts-tools/gsmws/pkg/control"
	"github.com/openbts-tools/gsmws/pkg/decoder"
	"github.com/openbts-tools/gsmws/pkg/store"
)

const defaultDissectorCmd = "tshark -V -n -i any udp dst port 4729"

func main() {
	openbtsdb := flag.String("openbtsdb", "/etc/OpenBTS/OpenBTS.db", "OpenBTS.db location")
	openbts := flag.String("openbts", "OpenBTS", "OpenBTS process name")
	transceiver := flag.String("transceiver", "transceiver", "transceiver process name")
	cycle := flag.Int("cycle", 14400, "time before switching to a new set of neighbors to scan (seconds)")
	sleep := flag.Int("sleep", 10, "time to sleep between RSSI checks (seconds)")
	gsmwsdb := flag.String("gsmwsdb", defaultGSMWSDBPath(), "where to store the gsmws.db file")
	cmdStr := flag.String("cmd", "", "dissector command string to run")
	stdin := flag.Bool("stdin", false, "read the dissector stream from stdin")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("openbts", *openbts)

	if err := run(log, *openbtsdb, *openbts, *transceiver, *gsmwsdb, *cmdStr, *stdin,
		time.Duration(*cycle)*time.Second, time.Duration(*sleep)*time.Second); err != nil {
		log.WithError(err).Fatal("gsmwsd: startup failed")
	}
}

func defaultGSMWSDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gsmws.db"
	}
	return filepath.Join(home, "gsmws.db")
}

// run wires up the Observation Store, BTS Driver, Decoder Worker, and
// Single-BTS Controller, then blocks until SIGINT/SIGTERM.
// Only startup failures are returned as errors; once the goroutines are
// running, interrupt exits cleanly via the caller's os.Exit(0) default.
func run(log logrus.FieldLogger, openbtsdb, openbtsName, transceiverName, gsmwsdb, cmdStr string, useStdin bool, cycle, sleep time.Duration) error {
	st, err := store.Open(gsmwsdb, log)
	if err != nil {
		return fmt.Errorf("open observation store: %w", err)
	}
	defer st.Close()

	config, err := bts.OpenConfigStore(openbtsdb)
	if err != nil {
		return fmt.Errorf("open BTS configuration store: %w", err)
	}
	defer config.Close()

	socketPath, found, err := config.Get("CLI.SocketPath")
	if err != nil {
		return fmt.Errorf("read CLI.SocketPath: %w", err)
	}
	if !found {
		return fmt.Errorf("BTS configuration store has no CLI.SocketPath key")
	}
	socket := bts.NewCommandSocket(socketPath)

	driver := bts.NewLegacyDriver(openbtsName, transceiverName, config, socket, log)

	// A radio frequency offset mismatched against its default aborts
	// startup before entering the loop.
	if ok, err := driver.OffsetCorrect(); err != nil {
		return fmt.Errorf("offset_correct check: %w", err)
	} else if !ok {
		return fmt.Errorf("radio frequency offset does not match its default; refusing to start %s/%s", openbtsName, transceiverName)
	}

	dec, err := decoder.New(st, log.WithField("component", "decoder"))
	if err != nil {
		return fmt.Errorf("create decoder worker: %w", err)
	}

	unit := control.NewBTSUnit(openbtsName, driver, dec, 0)
	ctrl := control.NewController(unit, st, sleep, cycle, log.WithField("component", "controller"))

	stream, closeStream, err := openDissectorStream(useStdin, cmdStr)
	if err != nil {
		return fmt.Errorf("open dissector stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The Decoder Worker blocks in its stream reader; it exits when that
	// stream closes, or at the next record it reads after ctx is canceled.
	// It is not waited on; closing its stream below is best-effort cleanup,
	// and the process exiting reclaims the goroutine either way.
	go func() {
		if err := dec.Run(ctx, stream); err != nil {
			log.WithError(err).Error("decoder worker stopped")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			log.WithError(err).Error("controller stopped")
		}
	}()

	<-sigCh
	log.Info("interrupt received, shutting down")
	cancel()
	wg.Wait()
	closeStream()
	return nil
}

// openDissectorStream returns the dissector's output stream: os.Stdin when
// requested, or the stdout pipe of a spawned dissector subprocess
// (defaulting to tshark capturing GSMTAP). The returned closer
// releases whatever resources were allocated.
func openDissectorStream(useStdin bool, cmdStr string) (stream io.Reader, closeFn func(), err error) {
	if useStdin {
		return os.Stdin, func() {}, nil
	}

	if cmdStr == "" {
		cmdStr = defaultDissectorCmd
	}
	fields := strings.Fields(cmdStr)
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("empty dissector command")
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stderr = os.Stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("create dissector stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start dissector %q: %w", cmdStr, err)
	}

	return pipe, func() {
		pipe.Close()
		cmd.Process.Kill()
		cmd.Wait()
	}, nil
}
