package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/protocol"
)

// stopCommand on stdin stops the current search through the bridge
// instead of being passed to the engine.
const stopCommand = ":stop"

var interactive bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine, reading commands from stdin",
	Long: `Run boots the engine and relays its protocol. Each stdin line is sent to the
engine as a command; the line ":stop" stops the current search. Engine
output is written to stdout as one JSON event per line.

With -i and a terminal on stdout, a terminal UI is shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if interactive {
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return runInteractive(ctx)
			}
			logger.Warn("stdout is not a terminal, falling back to JSON lines")
		}
		return runPlain(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "terminal UI")
}

func newBridge() (*bridge.Bridge, error) {
	bc, err := cfg.Bridge()
	if err != nil {
		return nil, err
	}
	return bridge.New(bc), nil
}

// jsonSink writes one JSON document per event.
type jsonSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONSink(w io.Writer) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(w)}
}

func (s *jsonSink) Emit(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		logger.Warn("write event", zap.Error(err))
	}
}

func runPlain(ctx context.Context, in io.Reader, out io.Writer) error {
	tier, err := cfg.QualityTier()
	if err != nil {
		return err
	}
	b, err := newBridge()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			logger.Warn("close bridge", zap.Error(err))
		}
	}()

	url, err := b.Init(ctx, newJSONSink(out), tier)
	if err != nil {
		return err
	}
	logger.Info("engine starting", zap.String("url", url))

	return relay(ctx, in, b, b.Done())
}

// relay forwards commands from in. End of input does not end the run:
// the engine keeps answering until ctx is cancelled or done is closed.
func relay(ctx context.Context, in io.Reader, c commander, done <-chan struct{}) error {
	errc := make(chan error, 1)
	go func() { errc <- relayCommands(in, c) }()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return nil
	case err := <-errc:
		if err != nil {
			return err
		}
	}

	logger.Debug("end of commands, waiting for the engine")
	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}

// commander is the part of the bridge stdin drives.
type commander interface {
	Send(cmd string)
	Stop() bool
}

// relayCommands forwards stdin lines until EOF.
func relayCommands(in io.Reader, c commander) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
		case stopCommand:
			forced := c.Stop()
			logger.Info("stop requested", zap.Bool("forced", forced))
		default:
			c.Send(line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return nil
}
