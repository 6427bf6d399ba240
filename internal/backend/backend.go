// Package backend picks the counter backend from the available credentials.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/datastore"
	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/tckz/go-clickcounter/internal/counter"
)

type Mode string

const (
	ModeFirestore Mode = "firestore"
	ModeDatastore Mode = "datastore"
	ModeRedis     Mode = "redis"
	ModeMemory    Mode = "memory"
)

// DB is the API used to reach the document store.
type DB string

const (
	// DBFirestore is Firestore in Native mode, what Firebase projects use.
	DBFirestore DB = "firestore"
	// DBDatastore is Datastore, or Firestore in Datastore mode.
	DBDatastore DB = "datastore"
)

const defaultFirebaseProjectID = "default-project-id"

// ErrNoCredentials means nothing in the environment points at a document store.
var ErrNoCredentials = errors.New("no document store credentials")

type Config struct {
	// ServiceAccountJSON is the content of a service account key (FIREBASE_SA_JSON).
	ServiceAccountJSON string
	// FirebaseConfig is a JSON object with projectId (FIREBASE_CONFIG); selects ADC.
	FirebaseConfig        string
	ProjectID             string
	DatastoreEmulatorHost string
	FirestoreEmulatorHost string

	// DB forces the store API. Empty means firestore for Firebase credentials
	// and the matching emulator otherwise.
	DB          DB
	Namespace   string
	MaxAttempts int
	// VerifyTimeout bounds the read done at startup; 0 skips it.
	VerifyTimeout time.Duration

	RedisAddr string
	RedisKey  string

	ReadCacheTTL time.Duration
}

// ConfigFromEnv fills the credential fields from the process environment.
func ConfigFromEnv() Config {
	return Config{
		ServiceAccountJSON:    os.Getenv("FIREBASE_SA_JSON"),
		FirebaseConfig:        os.Getenv("FIREBASE_CONFIG"),
		ProjectID:             os.Getenv("PROJECT_ID"),
		DatastoreEmulatorHost: os.Getenv("DATASTORE_EMULATOR_HOST"),
		FirestoreEmulatorHost: os.Getenv("FIRESTORE_EMULATOR_HOST"),
	}
}

type Backend struct {
	Counter counter.Counter
	Mode    Mode

	closers []func() error
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open never fails: when the document store cannot be set up or reached it falls back
// to Redis or memory.
func Open(ctx context.Context, cfg Config, logger *zap.SugaredLogger) *Backend {
	b, err := openStore(ctx, cfg)
	switch {
	case err == nil:
		logger.Infof("%s counter enabled", b.Mode)
	case errors.Is(err, ErrNoCredentials):
		logger.Warnf("no document store credentials found, counter will not be persisted in it")
	default:
		logger.Errorf("*** document store init failed, falling back: %v", err)
	}

	if b == nil {
		b = openFallback(cfg)
		logger.Infof("%s counter enabled", b.Mode)
	}

	if cfg.ReadCacheTTL > 0 {
		b.Counter = counter.NewCachedCounter(b.Counter, cfg.ReadCacheTTL)
		logger.Infof("read cache enabled: ttl=%s", cfg.ReadCacheTTL)
	}
	return b
}

func openStore(ctx context.Context, cfg Config) (*Backend, error) {
	t, err := ResolveTarget(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, closer, err := OpenStore(ctx, t, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.VerifyTimeout > 0 {
		vctx, cancel := context.WithTimeout(ctx, cfg.VerifyTimeout)
		defer cancel()
		// a malformed record is a data problem, the store itself is usable
		if _, err := store.Load(vctx); err != nil && !errors.Is(err, counter.ErrMalformedRecord) {
			closer()
			return nil, fmt.Errorf("verify %s: project=%s, %w", t.DB, t.ProjectID, err)
		}
	}

	return &Backend{
		Counter: counter.NewPersistentCounter(store),
		Mode:    Mode(t.DB),
		closers: []func() error{closer},
	}, nil
}

func openFallback(cfg Config) *Backend {
	if cfg.RedisAddr == "" {
		return &Backend{Counter: &counter.LocalCounter{}, Mode: ModeMemory}
	}

	cl := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.RedisAddr},
		DialTimeout:  time.Second * 2,
		ReadTimeout:  time.Second * 2,
		WriteTimeout: time.Second * 2,
		PoolTimeout:  time.Second * 5,
	})
	key, _ := lo.Coalesce(cfg.RedisKey, counter.CounterName)
	return &Backend{
		Counter: counter.NewRedisCounter(cl, key),
		Mode:    ModeRedis,
		closers: []func() error{cl.Close},
	}
}

// Target says which store API to use with which project and credentials.
// Creds is nil when an emulator is used.
type Target struct {
	DB        DB
	ProjectID string
	Creds     *google.Credentials
}

// OpenStore builds the client for t and returns the counter store with its closer.
func OpenStore(ctx context.Context, t *Target, cfg Config) (counter.Store, func() error, error) {
	var opts []option.ClientOption
	if t.Creds != nil {
		opts = append(opts, option.WithCredentials(t.Creds))
	}

	switch t.DB {
	case DBFirestore:
		cl, err := firestore.NewClient(ctx, t.ProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore.NewClient: project=%s, %w", t.ProjectID, err)
		}
		return counter.NewFirestoreStore(cl, cfg.MaxAttempts), cl.Close, nil
	case DBDatastore:
		cl, err := datastore.NewClient(ctx, t.ProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore.NewClient: project=%s, %w", t.ProjectID, err)
		}
		store := &counter.DatastoreStore{
			Client:      cl,
			Key:         counter.CounterKey(cfg.Namespace),
			MaxAttempts: cfg.MaxAttempts,
		}
		return store, cl.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown db: %q", t.DB)
}

type firebaseConfig struct {
	ProjectID string `json:"projectId"`
}

// ResolveTarget works out the store to talk to from the credentials in cfg.
func ResolveTarget(ctx context.Context, cfg Config) (*Target, error) {
	t, err := resolveTarget(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DB != "" {
		t.DB = cfg.DB
	}
	return t, nil
}

func resolveTarget(ctx context.Context, cfg Config) (*Target, error) {
	switch {
	case cfg.ServiceAccountJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.ServiceAccountJSON), datastore.ScopeDatastore)
		if err != nil {
			return nil, fmt.Errorf("google.CredentialsFromJSON: %w", err)
		}
		pjID, ok := lo.Coalesce(creds.ProjectID, cfg.ProjectID)
		if !ok {
			return nil, errors.New("service account has no project_id and PROJECT_ID is not set")
		}
		return &Target{DB: DBFirestore, ProjectID: pjID, Creds: creds}, nil

	case cfg.FirebaseConfig != "":
		var fc firebaseConfig
		if err := json.Unmarshal([]byte(cfg.FirebaseConfig), &fc); err != nil {
			return nil, fmt.Errorf("json.Unmarshal: FIREBASE_CONFIG, %w", err)
		}
		creds, err := google.FindDefaultCredentials(ctx, datastore.ScopeDatastore)
		if err != nil {
			return nil, fmt.Errorf("google.FindDefaultCredentials: %w", err)
		}
		pjID, _ := lo.Coalesce(fc.ProjectID, defaultFirebaseProjectID)
		return &Target{DB: DBFirestore, ProjectID: pjID, Creds: creds}, nil

	case cfg.ProjectID == "":
		return nil, ErrNoCredentials

	case cfg.FirestoreEmulatorHost != "":
		return &Target{DB: DBFirestore, ProjectID: cfg.ProjectID}, nil

	case cfg.DatastoreEmulatorHost != "":
		return &Target{DB: DBDatastore, ProjectID: cfg.ProjectID}, nil

	case cfg.DB != "":
		creds, err := google.FindDefaultCredentials(ctx, datastore.ScopeDatastore)
		if err != nil {
			return nil, fmt.Errorf("google.FindDefaultCredentials: %w", err)
		}
		return &Target{DB: cfg.DB, ProjectID: cfg.ProjectID, Creds: creds}, nil
	}

	return nil, ErrNoCredentials
}
