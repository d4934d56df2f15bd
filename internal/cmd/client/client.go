// Package clientcmd wires internal/client into two thin Cobra commands —
// publish and subscribe — used as the demo publisher/subscriber named in
// the CLI's wiring scope. There is no HTTP API to talk to (RocketSpeed's
// client API is the wire protocol itself), so these commands dial the
// broker directly with internal/client.Client the way a real consumer of
// the library would.
package clientcmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BMDan/RocketSpeed/internal/client"
	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/sharding"
	"github.com/BMDan/RocketSpeed/internal/transport"
	"github.com/BMDan/RocketSpeed/internal/wire"
	"github.com/BMDan/RocketSpeed/pkg/id"
	logpkg "github.com/BMDan/RocketSpeed/pkg/log"
)

func newClient(broker string, logger logpkg.Logger) (*client.Client, func(), error) {
	router := sharding.NewConsistentRouter(1, 1, 1)
	router.AddHost(sharding.HostID(broker))

	loop := ioloop.NewEventLoop(256)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	dialer := transport.NewTCPDialer(loop, transport.DefaultOptions(), logger)
	c := client.New(client.Config{
		NumWorkers: 1,
		QueueSize:  256,
		Router:     router,
		Dialer:     dialer,
		Logger:     logger,
	})
	if err := c.Start(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return c, func() { c.Stop(); cancel() }, nil
}

// NewPublishCommand returns the "publish" demo command.
func NewPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one message to a topic (demo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, _ := cmd.Flags().GetString("broker")
			ns, _ := cmd.Flags().GetString("namespace")
			topic, _ := cmd.Flags().GetString("topic")
			payload, _ := cmd.Flags().GetString("payload")

			logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NewConsoleOutput()))
			c, closeFn, err := newClient(broker, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			gen := id.NewGenerator()
			msgID := gen.Next()
			done := make(chan client.ResultStatus, 1)
			status := c.Publish(context.Background(), wire.GuestTenant, ns, topic, client.PublishOptions{}, []byte(payload), func(rs client.ResultStatus) {
				done <- rs
			}, msgID)
			if status.Err != nil {
				return status.Err
			}

			select {
			case rs := <-done:
				fmt.Printf("published seqno=%d status=%d\n", rs.Seqno, rs.Status)
			case <-time.After(5 * time.Second):
				return fmt.Errorf("publish: timed out waiting for ack")
			}
			return nil
		},
	}
	cmd.Flags().String("broker", "127.0.0.1:8080", "Broker address")
	cmd.Flags().String("namespace", "default", "Namespace")
	cmd.Flags().String("topic", "demo", "Topic")
	cmd.Flags().String("payload", "hello", "Message payload")
	return cmd
}

// NewSubscribeCommand returns the "subscribe" demo command.
func NewSubscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a topic and print deliveries (demo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, _ := cmd.Flags().GetString("broker")
			ns, _ := cmd.Flags().GetString("namespace")
			topic, _ := cmd.Flags().GetString("topic")

			logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NewConsoleOutput()))
			c, closeFn, err := newClient(broker, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = c.Subscribe(sctx, client.SubscriptionParams{
				Namespace: ns,
				Topic:     topic,
				OnData: func(dd wire.DeliverData) {
					fmt.Printf("seqno=%d payload=%s\n", dd.Current, string(dd.Payload))
					c.Acknowledge(dd)
				},
				OnStatus: func(err error) {
					if err != nil {
						fmt.Fprintf(os.Stderr, "subscribe error: %v\n", err)
					}
				},
			}, broker)
			if err != nil {
				return err
			}

			<-sctx.Done()
			c.Unsubscribe(ns, topic)
			return nil
		},
	}
	cmd.Flags().String("broker", "127.0.0.1:8080", "Broker address")
	cmd.Flags().String("namespace", "default", "Namespace")
	cmd.Flags().String("topic", "demo", "Topic")
	return cmd
}
