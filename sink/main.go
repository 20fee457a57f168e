// Command sink runs a local stand-in for the measurements API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/sink"
)

func main() {
	var (
		listenFlag  = flag.String("listen", ":8080", "Address to listen on")
		keepFlag    = flag.Int("keep", 100, "Number of measurements kept in memory")
		devicesFlag = flag.String("devices", "", "Comma separated list of accepted device ids (empty = any)")
		uniqueFlag  = flag.Bool("unique", false, "Reject measurement ids that were already received")
		levelFlag   = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(*levelFlag)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)

	var devices []string
	for _, d := range strings.Split(*devicesFlag, ",") {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}

	server := sink.NewServer(sink.NewStore(*keepFlag), sink.Options{
		KnownDevices: devices,
		UniqueIDs:    *uniqueFlag,
	})
	logged := handlers.LoggingHandler(log.StandardLogger().Writer(), server.NewRouter())

	srv := &http.Server{
		Addr:              *listenFlag,
		Handler:           logged,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Measurements sink listening on %s", *listenFlag)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
