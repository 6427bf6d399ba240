package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tckz/go-clickcounter/internal/backend"
	"github.com/tckz/go-clickcounter/internal/counter"
	"github.com/tckz/go-clickcounter/internal/log"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel  = flag.String("log-level", "info", "info|warn|error")
	optDB        = flag.String("db", "", "firestore|datastore, empty selects from the credentials")
	optNameSpace = flag.String("ns", "", "datastore namespace")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.NewAppLogger(myName, log.WithLogLevel(*optLogLevel))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := backend.ConfigFromEnv()
	cfg.DB = backend.DB(*optDB)
	cfg.Namespace = *optNameSpace

	t, err := backend.ResolveTarget(ctx, cfg)
	if err != nil {
		logger.Fatalf("*** ResolveTarget: %v", err)
	}

	store, closer, err := backend.OpenStore(ctx, t, cfg)
	if err != nil {
		logger.Fatalf("*** OpenStore: %v", err)
	}
	defer closer()

	n, err := counter.NewPersistentCounter(store).Get(ctx)
	if err != nil {
		logger.Errorf("Get: %v", err)
		return
	}

	fmt.Fprintf(os.Stdout, "project=%s, db=%s, count=%d\n", t.ProjectID, t.DB, n)
}
