// cmd/hamsync-node is a single-binary demo host for one hamsync.Engine:
// it loads a YAML config, serves the peer relay endpoint and a health
// probe over HTTP, and shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hamsync"
	"hamsync/internal/config"
)

func main() {
	configPath := flag.String("config", "hamsync.yaml", "Path to the YAML config file")
	addr := flag.String("addr", ":8080", "Listen address (host:port)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := hamsync.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to start engine")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/relay/frame", func(c *gin.Context) {
		handler, ok := engine.RelayHandler()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no peer connection established yet"})
			return
		}
		handler(c)
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", *addr).Info("hamsync-node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}
	if err := engine.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("engine close error")
	}
}
