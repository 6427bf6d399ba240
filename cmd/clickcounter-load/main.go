package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	vh "github.com/tckz/vegetahelper"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"

	"github.com/tckz/go-clickcounter/internal/log"
	"github.com/tckz/go-clickcounter/internal/server"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optRate = &vh.RateFlag{
		Rate: &vegeta.Rate{
			Freq: 30,
			Per:  1 * time.Second,
		}}
	optDuration = flag.Duration("duration", 10*time.Second, "Duration of the test [0 = forever]")
	optOutput   = flag.String("output", "", "/path/to/results.bin or 'stdout'")
	optWorkers  = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optTarget   = flag.String("target", "http://localhost:5000", "base URL of the click counter")
)

func init() {
	godotenv.Load()

	flag.Var(optRate, "rate", "Number of requests per time unit")
	flag.Parse()

	logger = log.NewAppLogger(myName, log.WithLogLevel(*optLogLevel))
}

type nopWriteCloser struct {
	io.Writer
}

func (c nopWriteCloser) Close() error {
	return nil
}

func openResultFile(out string) (io.WriteCloser, error) {
	switch out {
	case "stdout":
		return &nopWriteCloser{os.Stdout}, nil
	default:
		return os.Create(out)
	}
}

type incrementResponse struct {
	Success  bool   `json:"success"`
	NewCount int64  `json:"newCount"`
	Message  string `json:"message"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

func getCount(ctx context.Context, cl *http.Client, base string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+server.CountPath, nil)
	if err != nil {
		return 0, fmt.Errorf("http.NewRequest: %w", err)
	}
	res, err := cl.Do(req)
	if err != nil {
		return 0, fmt.Errorf("Do: %w", err)
	}
	defer res.Body.Close()

	var cr countResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("Decode: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("get-count: status=%d", res.StatusCode)
	}
	return cr.Count, nil
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if *optOutput == "" {
		logger.Fatalf("*** --output must be specified.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := strings.TrimSuffix(*optTarget, "/")
	cl := &http.Client{Timeout: 10 * time.Second}

	before, err := getCount(ctx, cl, base)
	if err != nil {
		logger.Fatalf("*** getCount: %v", err)
	}

	var ctOK, ctNG int64
	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+server.IncrementPath, nil)
		if err != nil {
			atomic.AddInt64(&ctNG, 1)
			return nil, err
		}
		res, err := cl.Do(req)
		if err != nil {
			atomic.AddInt64(&ctNG, 1)
			return nil, err
		}
		defer res.Body.Close()

		var ir incrementResponse
		if err := json.NewDecoder(res.Body).Decode(&ir); err != nil {
			atomic.AddInt64(&ctNG, 1)
			return nil, err
		}
		if !ir.Success {
			atomic.AddInt64(&ctNG, 1)
			return nil, fmt.Errorf("increment-count: status=%d, %s", res.StatusCode, ir.Message)
		}
		atomic.AddInt64(&ctOK, 1)

		return result, nil
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "increment-count")

	out, err := openResultFile(*optOutput)
	if err != nil {
		logger.Fatal(err)
	}
	defer out.Close()
	enc := vegeta.NewEncoder(out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)

loop:
	for {
		select {
		case s := <-sig:
			logger.Infof("Received signal: %s", s)
			cancel()
			// keep loop until 'res' is closed.
		case r, ok := <-res:
			if !ok {
				break loop
			}
			if err := enc.Encode(r); err != nil {
				logger.Errorf("*** Encode: %v", err)
				break loop
			}
		}
	}

	after, err := getCount(context.Background(), cl, base)
	if err != nil {
		logger.Errorf("getCount: %v", err)
		return
	}

	ok := atomic.LoadInt64(&ctOK)
	logger.Infof("succeeded=%s, failed=%s, before=%s, after=%s",
		humanize.Comma(ok), humanize.Comma(atomic.LoadInt64(&ctNG)), humanize.Comma(before), humanize.Comma(after))
	if after-before < ok {
		logger.Errorf("*** lost updates: counter advanced %s but %s increments succeeded",
			humanize.Comma(after-before), humanize.Comma(ok))
	}
}
