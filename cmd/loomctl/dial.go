package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loom-rpc/loom/pkg/loomsession"
	"github.com/loom-rpc/loom/pkg/loomtransport"
)

var dialCmd = &cobra.Command{
	Use:   "dial <payload>",
	Short: "Connect to a peer, say HELLO, and send one REQUEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		resp, err := runDial(ctx, cfg.Address, []byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resp)
		return nil
	},
}

// runDial connects to addr, says HELLO, sends payload as one REQUEST,
// waits for the RESPONSE, and closes the session. It is the dial
// command's logic, factored out so it can be driven directly in tests
// without going through the cobra command tree.
func runDial(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	transport, err := connect(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("loomctl dial: %w", err)
	}
	defer transport.Close()

	sess := loomsession.New(transport, cfg.MaxPayload, logger)
	go sess.Run(ctx)
	go sess.PingLoop(ctx)

	pingInterval := time.Duration(cfg.PingInterval) * time.Millisecond
	if err := sess.Hello(ctx, pingInterval, cfg.Encodings); err != nil {
		return nil, fmt.Errorf("loomctl dial: hello: %w", err)
	}

	resp, err := sess.Call(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("loomctl dial: call: %w", err)
	}

	if err := sess.Close(ctx, 0, []byte("dial: done")); err != nil {
		return nil, fmt.Errorf("loomctl dial: close: %w", err)
	}
	return resp, nil
}

// connect opens a Transport to addr, choosing WebSocket or TCP per the
// --ws flag.
func connect(ctx context.Context, addr string) (loomtransport.Transport, error) {
	if wsFlag {
		return loomtransport.DialWS(ctx, "ws://"+addr)
	}
	return loomtransport.DialTCP(ctx, addr)
}

func init() {
	rootCmd.AddCommand(dialCmd)
}
