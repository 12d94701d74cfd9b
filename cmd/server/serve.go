// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/audiosegmenter/internal/api"
	"github.com/ZSC714725/audiosegmenter/internal/conversion"
	"github.com/ZSC714725/audiosegmenter/internal/events"
	"github.com/ZSC714725/audiosegmenter/internal/metrics"
	"github.com/ZSC714725/audiosegmenter/internal/watcher"
)

var bindAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, ff, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if bindAddr != "" {
			cfg.Server.Bind = bindAddr
		}

		if err := ff.CheckDependencies(cmd.Context()); err != nil {
			log.Warn("ffmpeg check: %v", err)
		}

		bus := events.NewBus(1000)
		m := metrics.New()
		sinks := []conversion.Sink{bus, m}
		if cfg.Conversion.WatchOutput {
			w := watcher.New(log.Named("watcher"), bus.Segment)
			defer w.Close()
			sinks = append(sinks, w)
		}

		sup, err := conversion.New(conversion.Config{
			Toolchain:   ff,
			Sink:        conversion.Sinks(sinks...),
			Logger:      log.Named("conversion"),
			StopGrace:   cfg.Conversion.StopGrace,
			ExitTimeout: cfg.Conversion.ExitTimeout,
		})
		if err != nil {
			return err
		}

		gin.SetMode(gin.ReleaseMode)
		handler := api.NewHandler(sup, ff, bus, cfg.Conversion.SegmentSeconds)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:    cfg.Server.Bind,
			Handler: api.NewRouter(handler, m),
			// 收到信号后请求上下文随之取消，SSE 连接才能退出
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		errc := make(chan error, 1)
		go func() {
			log.Info("AudioSegmenter listening on %s", cfg.Server.Bind)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Conversion.StopGrace+cfg.Conversion.ExitTimeout+5*time.Second)
		defer cancel()

		if err := sup.Shutdown(shutdownCtx); err != nil {
			log.Error("stop conversion: %v", err)
		}
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&bindAddr, "bind", "b", "", "Bind address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
