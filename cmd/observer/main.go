// Command observer tails the villagesim snapshot stream and prints a
// live roster to the terminal. A companion process for watching the
// village without touching simulation state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"log/slog"

	"github.com/talgya/villagers/internal/snapshot"
	"github.com/talgya/villagers/internal/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	url := envOrDefault("VILLAGERS_STREAM_URL", "ws://localhost:8081/ws")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := connect(ctx, url)
	if client == nil {
		return
	}
	defer client.Close()

	for ctx.Err() == nil {
		frame, err := client.Next()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("stream read failed, reconnecting", "error", err)
			client.Close()
			client = connect(ctx, url)
			if client == nil {
				break
			}
			continue
		}
		render(frame)
	}

	fmt.Println("\nObserver stopped.")
}

// connect dials the stream with backoff until ctx is cancelled.
func connect(ctx context.Context, url string) *transport.Client {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second

	for ctx.Err() == nil {
		client, err := transport.Dial(ctx, url)
		if err == nil {
			return client
		}
		slog.Warn("simulation not ready, retrying...", "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil
}

// render clears the terminal and prints the roster from one frame.
func render(frame snapshot.Frame) {
	agents := make([]snapshot.AgentProjection, len(frame.Agents))
	copy(agents, frame.Agents)
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

	fmt.Print("\033[2J\033[H")
	fmt.Printf("%s  (tick %d)\n\n", frame.SimTime, frame.Tick)
	fmt.Printf("%-4s %-20s %-12s %-28s %-10s %-12s\n",
		"ID", "NAME", "STATE", "ACTION", "MOOD", "TIER")

	for _, a := range agents {
		fmt.Printf("%-4d %-20s %-12s %-28s %-10s %-12s\n",
			a.ID, a.Name, a.State, a.Action, a.Mood, a.TierName)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
