package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/cli"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/engine"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/tui"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	asFlag := flag.String("as", "", "participant id to act as (overrides [identity] id)")
	limitFlag := flag.Int("limit", cli.DefaultListLimit, "entries shown per sidebar section")
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fatalf("error: %v", err)
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}
	self := *asFlag
	if self == "" {
		self = cfg.Identity.ID
	}
	if self == "" {
		fatalf("no identity: run chatctl register --save or pass --as")
	}

	socketPath := session.SocketPath(sessionName)

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for session %q, starting...\n", sessionName)
		if err := startDaemon(sessionName); err != nil {
			fatalf("failed to start daemon: %v", err)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fatalf("daemon did not become ready")
		}
	}

	log, err := logging.NewFileOnly(session.ClientLogPath(sessionName, "chattui"), sessionName, zapcore.InfoLevel)
	if err != nil {
		fatalf("open log: %v", err)
	}
	defer func() { _ = log.Sync() }()

	c, err := client.New(socketPath)
	if err != nil {
		fatalf("connect to daemon: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := bootstrap(c, self, cfg.Identity); err != nil {
		fatalf("%v", err)
	}

	feed := realtime.UnixFeed(session.RealtimeSocketPath(sessionName), log.Named("feed"))
	app := tui.NewApp(c, feed, tui.Options{
		SessionName: sessionName,
		Engine:      engine.OptionsFrom(self, cfg.Sync),
		ListLimit:   *limitFlag,
	}, log)
	if err := app.Run(); err != nil {
		log.Error("tui exited", zap.Error(err))
		fatalf("error: %v", err)
	}
}

// bootstrap upserts the configured identity, or checks that the participant
// passed with --as exists.
func bootstrap(c *client.Client, self string, id config.Identity) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if self == id.ID && id.DisplayName != "" {
		p := chat.Participant{ID: id.ID, DisplayName: id.DisplayName, Category: id.Category}
		if err := c.UpsertParticipant(ctx, p); err != nil {
			return fmt.Errorf("register %s: %w", self, err)
		}
		return nil
	}
	p, err := c.GetParticipant(ctx, self)
	if err != nil {
		return fmt.Errorf("look up %s: %w", self, err)
	}
	if p == nil {
		return fmt.Errorf("unknown participant %q: run chatctl register first", self)
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// probeDaemon checks that a daemon answers on the socket.
func probeDaemon(socketPath string) bool {
	c, err := client.New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(sessionName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	daemon := filepath.Join(filepath.Dir(executable), "chatsyncd")

	if _, err := os.Stat(daemon); err != nil {
		daemon = "chatsyncd"
	}

	cmd := exec.Command(daemon, "--session", sessionName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon until it answers a status call.
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
