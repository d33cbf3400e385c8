package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teaglass/rtmchat/internal/config"
	"github.com/teaglass/rtmchat/internal/roster"
	"github.com/teaglass/rtmchat/internal/rtm"
	"github.com/teaglass/rtmchat/internal/transport"
)

func main() {
	configPath := flag.String("config", "rtmchat.toml", "Path to the TOML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtmchat: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)

	conn, err := transport.Dial(context.Background(), cfg.URL)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.URL).Msg("dial failed")
	}

	sess := rtm.NewSession(rtm.Options{
		Roster:       roster.New(),
		Formatter:    plainFormatter{},
		Display:      consoleDisplay{},
		Login:        loginLogger{logger},
		PingInterval: cfg.PingInterval(),
		Logger:       logger,
	})
	sess.Attach(conn)
	defer sess.Close()

	if err := sess.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("rtm.connect failed")
	}

	go func() {
		err := <-sess.Disconnects()
		logger.Error().Err(err).Msg("disconnected")
		os.Exit(1)
	}()

	fmt.Println("Commands: /msg <user> <text>, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "quit" || line == "exit":
			return
		case strings.HasPrefix(line, "/msg "):
			rest := strings.TrimPrefix(line, "/msg ")
			who, text, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: /msg <user> <text>")
				continue
			}
			if err := sess.SendMessage(who, text); err != nil {
				logger.Error().Err(err).Str("user", who).Msg("send failed")
			}
		default:
			fmt.Println("unknown command")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("stdin error")
	}
}

func initLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "rtmchat").Logger()
}

// consoleDisplay prints conversations to stdout.
type consoleDisplay struct{}

func (consoleDisplay) ShowMessage(conv, text string, _ rtm.MessageFlags, ts time.Time) {
	stamp := ts.Format("15:04:05")
	if ts.IsZero() {
		stamp = "--:--:--"
	}
	fmt.Printf("[%s] %s: %s\n", stamp, conv, text)
}

func (consoleDisplay) ShowError(conv, message string) {
	fmt.Printf("!! %s: %s\n", conv, message)
}

func (consoleDisplay) ShowTyping(conv, user string) {
	fmt.Printf("... %s is typing in %s\n", user, conv)
}

// plainFormatter passes message text through without markup handling.
type plainFormatter struct{}

func (plainFormatter) Render(payload json.RawMessage) string {
	var msg struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(payload, &msg)
	return msg.Text
}

func (plainFormatter) Compose(text string, _ rtm.MessageFlags) string {
	return text
}

// loginLogger traces login-sequencer steps; the real sequencing lives
// outside this client.
type loginLogger struct {
	log zerolog.Logger
}

func (l loginLogger) Advance() {
	l.log.Debug().Msg("login step")
}
