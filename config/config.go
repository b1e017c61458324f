// Package config assembles a session.Registry from functional options,
// selecting the model backend, the persistence backend, and the resilience
// thresholds a deployment wants. It is grounded in the upstream engine's
// graph.Option/graph.Options dual pattern (graph/options.go): every With*
// function is both independently chainable and composable with a plain
// Options struct literal.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/agentloom/agentloom/builtin"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/model/anthropic"
	"github.com/agentloom/agentloom/model/cliproc"
	"github.com/agentloom/agentloom/model/google"
	"github.com/agentloom/agentloom/model/mock"
	"github.com/agentloom/agentloom/model/openai"
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/runtime"
	"github.com/agentloom/agentloom/session"
	"github.com/agentloom/agentloom/store"
	"github.com/agentloom/agentloom/telemetry"
)

// ModelBackend selects which model/* adapter Build wires into the
// assembled Registry's ModelFactory.
type ModelBackend string

const (
	BackendCLIProc   ModelBackend = "cliproc"
	BackendAnthropic ModelBackend = "anthropic"
	BackendOpenAI    ModelBackend = "openai"
	BackendGoogle    ModelBackend = "google"
	BackendMock      ModelBackend = "mock"
)

// StoreBackend selects which store.* implementation Build wires in for
// both WorkflowStore and PersistenceStore.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreSQLite StoreBackend = "sqlite"
	StoreMySQL  StoreBackend = "mysql"
)

// Options is the internal configuration collected by applying Option
// values; it can also be built directly as a struct literal and passed as
// an Option itself via Options.apply.
type Options struct {
	ModelBackend ModelBackend
	CLIProcCmd   []string
	APIKey       string
	DefaultModel string

	StoreBackend StoreBackend
	SQLitePath   string
	MySQLDSN     string

	Freshness   resilience.FreshnessConfig
	NodeTimeout time.Duration

	Metrics runtime.Metrics
	Emitter telemetry.Emitter

	// ContextLimitOverrides augments resilience's per-model context-window
	// table (e.g. for a fine-tuned or newly released model).
	ContextLimitOverrides map[string]int

	// ExtraNodeTypes lets a deployment register additional node.Type values
	// beyond the spec's built-in library, without forking package builtin.
	ExtraNodeTypes []node.Type
}

// Option configures Options. Matches graph.Option's shape: a function
// returning an error so validation can happen at apply time.
type Option func(*Options) error

func defaultOptions() Options {
	return Options{
		ModelBackend: BackendMock,
		StoreBackend: StoreMemory,
		NodeTimeout:  30 * time.Second,
		Freshness: resilience.FreshnessConfig{
			MaxIdle:             30 * time.Minute,
			MaxIterationsPerRun: 200,
		},
	}
}

// apply lets a fully-built Options value be passed directly as an Option,
// the same "mix struct literal with With* calls" idiom graph.Options
// supports.
func (o Options) apply(cfg *Options) error {
	*cfg = o
	return nil
}

// AsOption adapts an Options struct literal into an Option, so callers can
// write Build(myOpts.AsOption(), WithNodeTimeout(5*time.Second)) to override
// individual fields after a bulk literal.
func (o Options) AsOption() Option { return o.apply }

// WithModelBackend selects which model/* adapter backs every session.
//
// Default: BackendMock (deterministic, no external process or network
// call — safe for tests and local development).
func WithModelBackend(b ModelBackend) Option {
	return func(cfg *Options) error {
		cfg.ModelBackend = b
		return nil
	}
}

// WithCLIProcCommand sets the subprocess command line used when
// ModelBackend is BackendCLIProc, e.g. {"claude", "--print"}.
func WithCLIProcCommand(cmd []string) Option {
	return func(cfg *Options) error {
		cfg.CLIProcCmd = cmd
		return nil
	}
}

// WithAPIKey sets the credential used by the anthropic/openai/google
// backends. Ignored by BackendCLIProc and BackendMock.
func WithAPIKey(key string) Option {
	return func(cfg *Options) error {
		cfg.APIKey = key
		return nil
	}
}

// WithDefaultModel sets the model name used when a CreateRequest omits one.
func WithDefaultModel(name string) Option {
	return func(cfg *Options) error {
		cfg.DefaultModel = name
		return nil
	}
}

// WithStoreBackend selects the WorkflowStore/PersistenceStore
// implementation. path is the SQLite file path or MySQL DSN, as
// appropriate; ignored for StoreMemory.
//
// Default: StoreMemory.
func WithStoreBackend(b StoreBackend, path string) Option {
	return func(cfg *Options) error {
		cfg.StoreBackend = b
		switch b {
		case StoreSQLite:
			cfg.SQLitePath = path
		case StoreMySQL:
			cfg.MySQLDSN = path
		}
		return nil
	}
}

// WithFreshness sets the session reset thresholds (spec.md §4.F).
//
// Default: MaxIdle 30m, MaxIterationsPerRun 200, age/message checks
// disabled.
func WithFreshness(f resilience.FreshnessConfig) Option {
	return func(cfg *Options) error {
		cfg.Freshness = f
		return nil
	}
}

// WithNodeTimeout bounds a single node invocation's execution time.
//
// Default: 30s. Zero disables the per-node timeout entirely.
func WithNodeTimeout(d time.Duration) Option {
	return func(cfg *Options) error {
		cfg.NodeTimeout = d
		return nil
	}
}

// WithMetrics wires a runtime.Metrics sink (e.g. runtime.NewPrometheusMetrics).
func WithMetrics(m runtime.Metrics) Option {
	return func(cfg *Options) error {
		cfg.Metrics = m
		return nil
	}
}

// WithEmitter wires a telemetry.Emitter sink for session-level events.
func WithEmitter(e telemetry.Emitter) Option {
	return func(cfg *Options) error {
		cfg.Emitter = e
		return nil
	}
}

// WithContextLimitOverride augments the resilience layer's per-model
// context-window table for a model not already known to it.
func WithContextLimitOverride(modelName string, limit int) Option {
	return func(cfg *Options) error {
		if cfg.ContextLimitOverrides == nil {
			cfg.ContextLimitOverrides = make(map[string]int)
		}
		cfg.ContextLimitOverrides[modelName] = limit
		return nil
	}
}

// WithExtraNodeType registers an additional node type alongside the
// built-in library, for deployment-specific node kinds.
func WithExtraNodeType(t node.Type) Option {
	return func(cfg *Options) error {
		cfg.ExtraNodeTypes = append(cfg.ExtraNodeTypes, t)
		return nil
	}
}

// Closer releases the store Build opened (open database handles). It does
// not stop subprocesses that the model factory spawns for sessions.
type Closer func() error

// Build assembles a session.Registry from the given options, wiring the
// selected model backend, persistence backend, node catalog (the built-in
// library plus any ExtraNodeTypes), and resilience thresholds.
func Build(opts ...Option) (*session.Registry, Closer, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, nil, fmt.Errorf("config: apply option: %w", err)
		}
	}

	for modelName, limit := range cfg.ContextLimitOverrides {
		resilience.RegisterContextLimit(modelName, limit)
	}

	nodeTypes := node.NewRegistry(nil)
	builtin.Register(nodeTypes)
	for _, t := range cfg.ExtraNodeTypes {
		nodeTypes.Register(t)
	}

	factory, err := buildModelFactory(cfg)
	if err != nil {
		return nil, nil, err
	}

	persistence, workflows, closeStore, err := buildStores(cfg)
	if err != nil {
		return nil, nil, err
	}

	registry := session.NewRegistry(
		persistence,
		workflows,
		nodeTypes,
		factory,
		cfg.Freshness,
		cfg.NodeTimeout,
		cfg.Metrics,
		cfg.Emitter,
	)

	return registry, closeStore, nil
}

func buildModelFactory(cfg Options) (session.ModelFactory, error) {
	switch cfg.ModelBackend {
	case BackendMock:
		return func(modelName, storagePath string) (model.Model, error) {
			return mock.New(firstNonEmpty(modelName, cfg.DefaultModel)), nil
		}, nil

	case BackendCLIProc:
		return func(modelName, storagePath string) (model.Model, error) {
			return cliproc.New(cliproc.Config{
				Command:    cfg.CLIProcCmd,
				WorkingDir: storagePath,
				ModelName:  firstNonEmpty(modelName, cfg.DefaultModel),
			}), nil
		}, nil

	case BackendAnthropic:
		return func(modelName, storagePath string) (model.Model, error) {
			return anthropic.New(anthropic.Config{
				APIKey:    cfg.APIKey,
				ModelName: firstNonEmpty(modelName, cfg.DefaultModel),
			}), nil
		}, nil

	case BackendOpenAI:
		return func(modelName, storagePath string) (model.Model, error) {
			return openai.New(openai.Config{
				APIKey:    cfg.APIKey,
				ModelName: firstNonEmpty(modelName, cfg.DefaultModel),
			}), nil
		}, nil

	case BackendGoogle:
		return func(modelName, storagePath string) (model.Model, error) {
			return google.New(context.Background(), google.Config{
				APIKey:    cfg.APIKey,
				ModelName: firstNonEmpty(modelName, cfg.DefaultModel),
			})
		}, nil

	default:
		return nil, fmt.Errorf("config: unknown model backend %q", cfg.ModelBackend)
	}
}

func buildStores(cfg Options) (store.PersistenceStore, store.WorkflowStore, Closer, error) {
	switch cfg.StoreBackend {
	case StoreMemory:
		return store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), func() error { return nil }, nil

	case StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("config: open sqlite store: %w", err)
		}
		return s.Sessions, s.Workflows, s.Close, nil

	case StoreMySQL:
		s, err := store.NewMySQLStore(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("config: open mysql store: %w", err)
		}
		return s.Sessions, s.Workflows, s.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("config: unknown store backend %q", cfg.StoreBackend)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
