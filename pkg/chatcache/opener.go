package chatcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type engineOpenFunc func(ctx context.Context, path string, log zerolog.Logger) (Engine, error)

var engineOpeners = map[string]engineOpenFunc{
	EngineDBUtil: func(ctx context.Context, path string, log zerolog.Logger) (Engine, error) {
		return openDBUtilEngine(ctx, path, log)
	},
	EngineGorm: func(ctx context.Context, path string, log zerolog.Logger) (Engine, error) {
		return openGormEngine(ctx, path, log)
	},
}

// probeOrder is the order in which EngineAuto tries engines.
var probeOrder = []string{EngineDBUtil, EngineGorm}

// Opener lazily opens one storage engine and hands the same instance to
// every caller. Callers racing on the first Open share a single attempt.
// A failed attempt is not remembered, so a later Open retries.
type Opener struct {
	path   string
	engine string
	log    zerolog.Logger

	group  singleflight.Group
	lock   sync.Mutex
	opened Engine
	closed bool

	// openFn is swapped in tests.
	openFn func(ctx context.Context) (Engine, error)
}

// NewOpener creates an Opener for the SQLite file at path. engine is one of
// EngineAuto, EngineDBUtil or EngineGorm; empty means EngineAuto.
func NewOpener(path, engine string, log zerolog.Logger) *Opener {
	if engine == "" {
		engine = EngineAuto
	}
	o := &Opener{
		path:   path,
		engine: engine,
		log:    log.With().Str("component", "chatcache_opener").Logger(),
	}
	o.openFn = o.probe
	return o
}

// Open returns the memoized engine, opening it on first use. It fails with
// ErrStorageUnavailable if no engine could be opened, or with ctx.Err() if
// ctx ends first. The shared attempt is not tied to any one caller's ctx.
func (o *Opener) Open(ctx context.Context) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.lock.Lock()
	if o.closed {
		o.lock.Unlock()
		return nil, fmt.Errorf("%w: opener closed", ErrStorageUnavailable)
	}
	if o.opened != nil {
		e := o.opened
		o.lock.Unlock()
		return e, nil
	}
	o.lock.Unlock()

	openCtx := context.WithoutCancel(ctx)
	ch := o.group.DoChan("open", func() (any, error) {
		o.lock.Lock()
		if o.opened != nil {
			e := o.opened
			o.lock.Unlock()
			return e, nil
		}
		o.lock.Unlock()

		e, err := o.openFn(openCtx)
		if err != nil {
			return nil, err
		}
		o.lock.Lock()
		defer o.lock.Unlock()
		if o.closed {
			_ = e.Close()
			return nil, fmt.Errorf("%w: opener closed", ErrStorageUnavailable)
		}
		o.opened = e
		return e, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Engine), nil
	}
}

func (o *Opener) probe(ctx context.Context) (Engine, error) {
	candidates := probeOrder
	if o.engine != EngineAuto {
		if _, ok := engineOpeners[o.engine]; !ok {
			return nil, fmt.Errorf("%w: unknown engine %q", ErrStorageUnavailable, o.engine)
		}
		candidates = []string{o.engine}
	}
	var errs []error
	for _, name := range candidates {
		e, err := engineOpeners[name](ctx, o.path, o.log)
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			// Cancellation says nothing about whether storage works.
			return nil, ctxErr
		} else if err != nil {
			o.log.Warn().Err(err).Str("engine", name).Msg("Storage engine unavailable")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		o.log.Debug().Str("engine", name).Str("path", o.path).Msg("Opened storage engine")
		return e, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, errors.Join(errs...))
}

// Close releases the engine if one was opened. Open fails after Close.
func (o *Opener) Close() error {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.closed = true
	if o.opened == nil {
		return nil
	}
	err := o.opened.Close()
	o.opened = nil
	return err
}
