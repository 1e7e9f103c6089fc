package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// Spec describes one configured source.
type Spec struct {
	// Name identifies the source to generated code and SQL authorization.
	Name string
	// Table is the database table; defaults to Name.
	Table string
	// CSV loads the source from a file. Without an adapter the table is
	// held in memory; with one it is loaded into Table on that connection.
	CSV string
	// Adapter is the connection for database-backed sources.
	Adapter core.AdapterConfig
}

// Pool opens sources and shares one adapter between sources that use the same
// connection.
type Pool struct {
	mu       sync.Mutex
	adapters map[connKey]adapter.Adapter
	order    []adapter.Adapter
	logger   *slog.Logger
}

// NewPool creates an empty pool.
// If logger is nil, a discard logger is used.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{logger: logger}
}

// Open creates the source described by spec.
func (p *Pool) Open(ctx context.Context, spec Spec) (DataSource, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("source name is required")
	}
	if spec.CSV != "" && spec.Adapter.Type == "" {
		t, err := ReadCSV(spec.CSV)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", spec.Name, err)
		}
		return NewMemory(spec.Name, t), nil
	}

	adp, err := p.connection(ctx, spec.Adapter)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", spec.Name, err)
	}
	src := NewSQL(spec.Name, spec.Table, adp, p.logger)
	if spec.CSV != "" {
		p.logger.Debug("loading csv into connection", slog.String("source", spec.Name),
			slog.String("table", src.TableName()), slog.String("path", spec.CSV))
		if err := adp.LoadCSV(ctx, src.TableName(), spec.CSV); err != nil {
			return nil, fmt.Errorf("source %s: %w", spec.Name, err)
		}
	}
	return src, nil
}

// OpenAll opens every spec in order, closing the pool on failure.
func (p *Pool) OpenAll(ctx context.Context, specs []Spec) ([]DataSource, error) {
	out := make([]DataSource, 0, len(specs))
	for _, spec := range specs {
		s, err := p.Open(ctx, spec)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Pool) connection(ctx context.Context, cfg core.AdapterConfig) (adapter.Adapter, error) {
	key := connectionKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adapters == nil {
		p.adapters = make(map[connKey]adapter.Adapter)
	}
	if adp, ok := p.adapters[key]; ok {
		return adp, nil
	}

	p.logger.Debug("opening connection", slog.String("type", cfg.Type), slog.String("database", cfg.Database+cfg.Path))
	adp, err := adapter.Open(ctx, cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.adapters[key] = adp
	p.order = append(p.order, adp)
	return adp, nil
}

// connKey is the comparable connection identity of an AdapterConfig.
type connKey struct {
	typ, path, host string
	port            int
	database, user  string
	password        string
}

func connectionKey(cfg core.AdapterConfig) connKey {
	return connKey{
		typ:      cfg.Type,
		path:     cfg.Path,
		host:     cfg.Host,
		port:     cfg.Port,
		database: cfg.Database,
		user:     cfg.Username,
		password: cfg.Password,
	}
}

// Close closes every adapter opened by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, adp := range p.order {
		if err := adp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.adapters = nil
	p.order = nil
	return errors.Join(errs...)
}
