package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/display"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	defaults := demo.DefaultConfig()
	duration := flag.Duration("duration", defaults.Duration, "demo length")
	expiring := flag.Duration("expiring", defaults.ExpiringWindow, "urgent styling starts when this much time is left")
	route := flag.String("route", display.DefaultRoute, "where the client is sent on expiry")
	flag.Parse()

	// Keep logs off the countdown line unless something goes wrong
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *duration < time.Second {
		fmt.Fprintf(os.Stderr, "duration must be at least 1s, got %s\n", *duration)
		os.Exit(1)
	}

	cfg := demo.Config{
		Duration:       *duration,
		ExpiringWindow: *expiring,
		LogoutTimeout:  time.Second,
	}

	ended := make(chan struct{})
	terminator := demo.TerminatorFunc(func(ctx context.Context) error {
		close(ended)
		return nil
	})
	holder := demo.NewHolder("local", cfg, clockwork.NewRealClock(), terminator)

	navigated := make(chan string, 1)
	nav := display.NavigatorFunc(func(route string) error {
		navigated <- route
		return nil
	})
	d := display.New(holder, display.NewTerminalRenderer(os.Stdout, "Demo ends in"), nav, *route)
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	holder.StartDemo()

	select {
	case target := <-navigated:
		<-ended
		fmt.Printf("\nDemo session over, continue at %s\n", target)
	case <-ctx.Done():
		holder.StopDemo()
		fmt.Println()
	}
}
