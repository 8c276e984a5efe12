// Command client is a small interactive livewire client. It connects
// to a server, subscribes to the given channels, prints inbound frames
// and sends stdin lines of the form "TYPE json-payload".
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightforgemedia/go-livewire/pkg/client"
	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

func main() {
	var (
		url       string
		identity  string
		channels  []string
		heartbeat time.Duration
		reconnect time.Duration
		attempts  int
		debug     bool
	)

	root := &cobra.Command{
		Use:   "client",
		Short: "Interactive livewire messaging client",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			cli, err := client.New(url,
				client.WithLogger(logger),
				client.WithHeartbeatInterval(heartbeat),
				client.WithReconnectInterval(reconnect),
				client.WithMaxReconnectAttempts(attempts),
				client.OnOpen(func() {
					fmt.Fprintln(os.Stderr, "* connected")
				}),
				client.OnClose(func() {
					fmt.Fprintln(os.Stderr, "* disconnected")
				}),
				client.OnReconnect(func(attempt int) {
					fmt.Fprintf(os.Stderr, "* reconnecting (attempt %d)\n", attempt)
				}),
				client.OnMessage(func(env *wire.Envelope) {
					fmt.Printf("<- %s %s\n", env.Type, string(env.Payload))
				}),
			)
			if err != nil {
				return err
			}
			defer cli.Close()

			for _, ch := range channels {
				cli.Subscribe(ch)
			}
			cli.Connect(identity)

			go readStdin(cli)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			return nil
		},
	}

	root.Flags().StringVar(&url, "url", "ws://localhost:8081/ws", "server URL")
	root.Flags().StringVar(&identity, "identity", "", "identity query parameter")
	root.Flags().StringSliceVar(&channels, "channel", nil, "channel to subscribe (repeatable)")
	root.Flags().DurationVar(&heartbeat, "heartbeat", 30*time.Second, "heartbeat interval (0 disables)")
	root.Flags().DurationVar(&reconnect, "reconnect-interval", 2*time.Second, "delay between reconnect attempts")
	root.Flags().IntVar(&attempts, "max-reconnects", 5, "max reconnect attempts (0 for unlimited)")
	root.Flags().BoolVar(&debug, "debug", false, "debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func readStdin(cli *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		typ, rest, _ := strings.Cut(line, " ")
		var payload interface{}
		if rest != "" {
			if err := json.Unmarshal([]byte(rest), &payload); err != nil {
				payload = rest // plain text payload
			}
		}
		if err := cli.Send(typ, payload); err != nil {
			fmt.Fprintf(os.Stderr, "! send: %v\n", err)
		}
	}
}
