// Command screenguide runs the assistant in a terminal. Instructions are
// printed as they arrive; type "help" for commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"screenguide/internal/bootstrap"
	"screenguide/internal/config"
	"screenguide/internal/usecase"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	device := cli.StringP("device", "d", "", "Microphone source; empty uses the configured default")
	proxyAddr := cli.StringP("proxy", "p", "", "SOCKS5 proxy address for model APIs")
	advice := cli.String("advice", "", "Advice provider (gemini or openai)")
	narration := cli.String("narration", "", "Narration provider (openai or elevenlabs)")
	interval := cli.Duration("interval", 0, "Analysis interval")
	cli.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(&cfg, flagOverrides{
		LogLevel:  *logLevel,
		Proxy:     *proxyAddr,
		Advice:    *advice,
		Narration: *narration,
		Interval:  *interval,
	})

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, *device, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("screenguide failed", "err", err)
		os.Exit(1)
	}
}

type flagOverrides struct {
	LogLevel  string
	Proxy     string
	Advice    string
	Narration string
	Interval  time.Duration
}

func applyFlags(cfg *config.Config, flags flagOverrides) {
	if flags.LogLevel != "" {
		cfg.LogLevel = config.ParseLogLevel(flags.LogLevel)
	}
	if flags.Proxy != "" {
		cfg.Network.SOCKSProxy = flags.Proxy
	}
	if flags.Advice != "" {
		cfg.Advice.Provider = strings.ToLower(flags.Advice)
	}
	if flags.Narration != "" {
		cfg.Narration.Provider = strings.ToLower(flags.Narration)
	}
	if flags.Interval >= time.Second {
		cfg.Session.AnalysisInterval = flags.Interval
	}
}

func run(cfg config.Config, device string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := newConsoleSink(out)
	services, err := bootstrap.BuildWithConfig(ctx, cfg, sink, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services failed", "err", err)
		}
	}()

	assistant := services.Assistant
	if err := assistant.Start(ctx, device); err != nil {
		return err
	}
	defer func() {
		if err := assistant.Stop(); err != nil {
			logger.Warn("stop reported release errors", "err", err)
		}
	}()
	sink.printf("Type \"help\" for commands.\n")

	commands := readCommands(in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-commands:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if done := dispatch(ctx, assistant, sink, logger, device, parseCommand(line)); done {
				return nil
			}
		}
	}
}

type command string

const (
	cmdNone      command = ""
	cmdNarrate   command = "narrate"
	cmdSummarize command = "summarize"
	cmdStatus    command = "status"
	cmdStart     command = "start"
	cmdStop      command = "stop"
	cmdHelp      command = "help"
	cmdQuit      command = "quit"
	cmdUnknown   command = "unknown"
)

func parseCommand(line string) command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return cmdNone
	case "n", "narrate", "read", "say":
		return cmdNarrate
	case "s", "summarize", "summary":
		return cmdSummarize
	case "?", "st", "status":
		return cmdStatus
	case "start":
		return cmdStart
	case "stop":
		return cmdStop
	case "h", "help":
		return cmdHelp
	case "q", "quit", "exit":
		return cmdQuit
	default:
		return cmdUnknown
	}
}

func dispatch(ctx context.Context, assistant *usecase.Assistant, sink *consoleSink, logger *slog.Logger, device string, cmd command) bool {
	switch cmd {
	case cmdNarrate:
		go func() {
			if err := assistant.Narrate(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("narration failed", "err", err)
			}
		}()
	case cmdSummarize:
		go func() {
			summary, err := assistant.Summarize(ctx)
			if err != nil {
				logger.Warn("summary failed", "err", err)
				return
			}
			sink.printf("\nSummary: %s\n", summary)
		}()
	case cmdStatus:
		snap := assistant.Snapshot()
		sink.printf("status=%s active=%t session=%s narration=%t\n", snap.Status, snap.Active, snap.SessionID, snap.HasNarration)
	case cmdStart:
		if err := assistant.Start(ctx, device); err != nil {
			logger.Warn("start failed", "err", err)
		}
	case cmdStop:
		if err := assistant.Stop(); err != nil {
			logger.Warn("stop reported release errors", "err", err)
		}
	case cmdHelp:
		sink.printf("commands: narrate (n), summarize (s), status, start, stop, quit (q)\n")
	case cmdQuit:
		return true
	case cmdUnknown:
		sink.printf("unknown command; type \"help\"\n")
	}
	return false
}

func readCommands(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
