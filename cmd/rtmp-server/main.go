package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zhangwz/rtmp-core/internal/logger"
	srv "github.com/zhangwz/rtmp-core/internal/rtmp/server"
	"github.com/zhangwz/rtmp-core/internal/rtmp/session"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// fs.Parse errors were already printed with usage; validation errors
		// exit without a message
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With(zap.String("component", "cli"))

	server := srv.New(srv.Config{
		ListenAddr: cfg.listenAddr,
		Session: session.Config{
			ChunkSize:     uint32(cfg.chunkSize),
			WindowAckSize: uint32(cfg.windowAckSize),
			PeerBandwidth: uint32(cfg.peerBandwidth),
			FMSVersion:    cfg.fmsVersion,
		},
	})

	if err := server.Start(); err != nil {
		log.Error("failed to start server", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server started", zap.String("addr", server.Addr().String()), zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", zap.Error(err))
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}
