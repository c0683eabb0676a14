package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"sonarbot/host/monitor"
	"sonarbot/host/serial"
	"sonarbot/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Print blink telemetry and debug logs")
	record  = flag.String("record", "", "Append the session to this CBOR file")
	replay  = flag.String("replay", "", "Print a recorded CBOR file and exit")
	session = flag.String("session", "", "With -replay, only print this session")
)

func main() {
	flag.Parse()

	if *replay != "" {
		if err := replayFile(os.Stdout, *replay, *session); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sonarbot> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: level}))

	opts := []monitor.Option{monitor.WithLogger(logger)}
	if *record != "" {
		id := uuid.New().String()
		rec, err := monitor.CreateRecorder(*record, id)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		opts = append(opts, monitor.WithRecorder(rec), monitor.WithSession(id))
	}

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	logger.Info("connecting", "device", cfg.Device, "baud", cfg.Baud)
	mon, err := monitor.Connect(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer mon.Close()
	logger.Info("connected", "session", mon.Session())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := mon.Run(ctx, func(ev protocol.Event) { printEvent(rl.Stdout(), ev, *verbose) })
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("telemetry stopped", "error", err)
		}
		cancel()
	}()

	con := &console{ctl: mon, out: rl.Stdout()}
	printHelp(rl.Stdout())
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			break
		}
		if con.execute(line) {
			break
		}
	}

	// Leave the robot stopped and in automatic mode.
	_ = mon.Move('S')
	_ = mon.SetManual(false)
	fmt.Fprintln(rl.Stdout(), "Goodbye!")
	return nil
}

func replayFile(w io.Writer, path, session string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rr := monitor.NewRecordReader(f, session)
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s %s %-3s %s\n",
			rec.Timestamp.Format("15:04:05.000"),
			strings.SplitN(rec.SessionID, "-", 2)[0],
			rec.Direction, rec.Event())
	}
}
