package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/loom-rpc/loom/pkg/loomsession"
	"github.com/loom-rpc/loom/pkg/loomtransport"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept connections and echo every REQUEST back to its sender",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if wsFlag {
			return serveWS(ctx, cfg.Address)
		}
		return serveTCP(ctx, cfg.Address)
	},
}

func serveTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("loomctl listen: %w", err)
	}
	logger.Info().Str("addr", addr).Msg("listening (tcp)")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go serveConn(ctx, loomtransport.NewTCPTransport(conn))
	}
}

func serveWS(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket accept failed")
			return
		}
		serveConn(r.Context(), loomtransport.NewWSTransport(conn))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	logger.Info().Str("addr", addr).Msg("listening (ws)")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("loomctl listen: %w", err)
	}
	return nil
}

func serveConn(ctx context.Context, transport loomtransport.Transport) {
	defer transport.Close()

	sess := loomsession.New(transport, cfg.MaxPayload, logger,
		loomsession.WithRequestHandler(func(ctx context.Context, payload []byte) ([]byte, error) {
			return payload, nil
		}),
		loomsession.WithPushHandler(func(payload []byte) {
			logger.Info().Bytes("payload", payload).Msg("received push")
		}),
	)

	pingInterval := time.Duration(cfg.PingInterval) * time.Millisecond
	if err := sess.Hello(ctx, pingInterval, cfg.Encodings); err != nil {
		logger.Warn().Err(err).Msg("hello failed")
		return
	}

	go sess.PingLoop(ctx)
	if err := sess.Run(ctx); err != nil {
		logger.Info().Err(err).Str("session", sess.ID()).Msg("session ended")
	}
}

func init() {
	rootCmd.AddCommand(listenCmd)
}
