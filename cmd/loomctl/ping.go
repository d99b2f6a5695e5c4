package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loom-rpc/loom/pkg/loomframe"
	"github.com/loom-rpc/loom/pkg/loomstream"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send PING frames to a peer and report round-trip time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		transport, err := connect(ctx, cfg.Address)
		if err != nil {
			return fmt.Errorf("loomctl ping: %w", err)
		}
		defer transport.Close()

		handler := loomstream.New(cfg.MaxPayload)

		for i := 0; i < pingCount; i++ {
			start := time.Now()
			wantSeq := handler.SendPing()
			if err := transport.Send(ctx, handler.WriteBufferGetBytes(handler.WriteBufferLen(), true)); err != nil {
				return fmt.Errorf("loomctl ping: send: %w", err)
			}

			if err := awaitPong(ctx, handler, transport, wantSeq); err != nil {
				return fmt.Errorf("loomctl ping: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seq=%d time=%s\n", wantSeq, time.Since(start))
		}
		return nil
	},
}

// awaitPong reads from transport until the PONG matching wantSeq arrives.
func awaitPong(ctx context.Context, handler *loomstream.Handler, transport interface {
	Recv(ctx context.Context) ([]byte, error)
}, wantSeq uint32) error {
	for {
		data, err := transport.Recv(ctx)
		if err != nil {
			return err
		}
		events, err := handler.OnBytesReceived(data)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.Opcode == loomframe.OpPong && ev.Seq == wantSeq {
				return nil
			}
		}
	}
}

func init() {
	pingCmd.Flags().IntVar(&pingCount, "count", 4, "number of pings to send")
	rootCmd.AddCommand(pingCmd)
}
