package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tckz/go-clickcounter/internal/backend"
	"github.com/tckz/go-clickcounter/internal/log"
	"github.com/tckz/go-clickcounter/internal/server"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optAddr          = flag.String("addr", ":5000", "listen address, port is replaced by $PORT when set")
	optLogLevel      = flag.String("log-level", "info", "info|warn|error")
	optAllowedOrigin = flag.String("allowed-origin", "", "CORS origin, defaults to $ALLOWED_ORIGIN or "+server.DefaultAllowedOrigin)
	optDB            = flag.String("db", "", "firestore|datastore, empty selects from the credentials")
	optNameSpace     = flag.String("ns", "", "datastore namespace")
	optMaxAttempts   = flag.Int("max-attempts", 0, "transaction attempts, 0 means client default")
	optRedis         = flag.String("redis", "", "addr:port of redis used when the document store is unavailable")
	optCounterKey    = flag.String("counter-key", "click_counter", "key of redis")
	optReadCacheTTL  = flag.Duration("read-cache-ttl", 0, "cache get-count results for this long, 0 disables")
	optVerifyTimeout = flag.Duration("verify-timeout", 10*time.Second, "read the counter once at startup within this, 0 skips")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.NewAppLogger(myName, log.WithLogLevel(*optLogLevel))
}

func listenAddr() string {
	port := os.Getenv("PORT")
	if port == "" {
		return *optAddr
	}
	host, _, err := net.SplitHostPort(*optAddr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, port)
}

func allowedOrigin() string {
	if *optAllowedOrigin != "" {
		return *optAllowedOrigin
	}
	if v := os.Getenv("ALLOWED_ORIGIN"); v != "" {
		return v
	}
	return server.DefaultAllowedOrigin
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := backend.ConfigFromEnv()
	cfg.DB = backend.DB(*optDB)
	cfg.Namespace = *optNameSpace
	cfg.MaxAttempts = *optMaxAttempts
	cfg.RedisAddr = *optRedis
	cfg.RedisKey = *optCounterKey
	cfg.ReadCacheTTL = *optReadCacheTTL
	cfg.VerifyTimeout = *optVerifyTimeout

	b := backend.Open(ctx, cfg, logger)
	defer func() {
		if err := b.Close(); err != nil {
			logger.Errorf("Close: %v", err)
		}
	}()
	logger.Infof("mode=%s", b.Mode)

	srv, err := server.NewServer(logger.Desugar(), b.Counter, server.WithAllowedOrigin(allowedOrigin()))
	if err != nil {
		logger.Fatalf("*** server.NewServer: %v", err)
	}

	if err := srv.Run(ctx, listenAddr()); err != nil {
		logger.Errorf("Run: %v", err)
	}
}
