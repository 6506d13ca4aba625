package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/resource"
)

// Options configures a Runtime. Zero fields take the engine defaults.
type Options struct {
	// Handles backs every own and borrow value. A new table is created
	// when nil.
	Handles *resource.Table

	ModuleName       string
	MemoryLimitPages uint32
	ArenaBase        uint32
}

type Runtime struct {
	engine  *engine.Engine
	hosts   *HostRegistry
	handles *resource.Table
	mu      sync.Mutex
	bound   bool
}

func New(ctx context.Context, opts Options) (*Runtime, error) {
	handles := opts.Handles
	if handles == nil {
		handles = resource.NewTable()
	}

	eng, err := engine.New(ctx, engine.Config{
		Handles:          handles,
		ModuleName:       opts.ModuleName,
		MemoryLimitPages: opts.MemoryLimitPages,
		ArenaBase:        opts.ArenaBase,
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "create engine")
	}
	handles.Subscribe(handleLogger{})

	return &Runtime{
		engine:  eng,
		hosts:   NewHostRegistry(),
		handles: handles,
	}, nil
}

// Close releases all runtime resources, every instance included.
func (r *Runtime) Close(ctx context.Context) error {
	r.handles.Unsubscribe(handleLogger{})
	return r.engine.Close(ctx)
}

// Handles returns the table shared by every instance of the runtime.
func (r *Runtime) Handles() *resource.Table {
	return r.handles
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// RegisterHost registers all exported methods of h as host functions.
// Must be called BEFORE the first Instantiate.
// Method names are converted from PascalCase to kebab-case (GetValue -> get-value).
func (r *Runtime) RegisterHost(h Host) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.hosts.RegisterHost(h)
}

func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.hosts.RegisterFunc(namespace, name, fn)
}

func (r *Runtime) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound {
		return errors.InvalidInput(errors.PhaseBind, "runtime already instantiated")
	}
	return nil
}

// Instantiate creates an instance with its own linear memory. The first
// call binds every registered host function into the engine.
func (r *Runtime) Instantiate(ctx context.Context) (*Instance, error) {
	r.mu.Lock()
	if !r.bound {
		if err := r.hosts.Bind(r.engine); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.bound = true
	}
	r.mu.Unlock()

	inst, err := r.engine.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	return &Instance{runtime: r, inst: inst}, nil
}

// handleLogger traces handle lifecycles at debug level.
type handleLogger struct{}

func (handleLogger) OnResourceEvent(e resource.Event) {
	engine.Logger().Debug("handle "+e.Type.String(),
		zap.String("resource", e.Resource),
		zap.Uint32("handle", uint32(e.Handle)),
		zap.Uint32("refs", e.Refs))
}
