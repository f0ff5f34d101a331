package ffibridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Callback is a foreign function held by a local reference. It is only
// usable on the goroutine and scope that produced it.
type Callback struct {
	env *Env
	fn  Ref
}

// Callback wraps fn.
func (e *Env) Callback(fn Ref) *Callback { return &Callback{env: e, fn: fn} }

// Ref returns the function reference.
func (c *Callback) Ref() Ref { return c.fn }

// Call serializes args and invokes the function with an undefined receiver.
// A thrown exception stays pending.
func (c *Callback) Call(args ...Value) (Ref, error) {
	refs, err := serializeArgs(c.env, nil, args)
	if err != nil {
		return 0, err
	}
	return c.env.CallFunction(c.fn, refs...)
}

// Global promotes the callback so it can be invoked from other goroutines.
// The returned handle holds one reference; Drop it when done.
func (c *Callback) Global() (*GlobalCallback, error) {
	g, err := c.env.Promote(c.fn)
	if err != nil {
		return nil, err
	}
	gc := &GlobalCallback{vm: c.env.vm, ref: g}
	gc.refs.Store(1)
	return gc, nil
}

// GlobalCallback is a reference-counted global function handle. The global
// reference is released when the last holder drops it.
type GlobalCallback struct {
	vm   *VM
	ref  *GlobalRef
	refs atomic.Int64
}

// Ref returns the global function reference.
func (g *GlobalCallback) Ref() Ref { return g.ref.Ref() }

// Clone adds a holder.
func (g *GlobalCallback) Clone() *GlobalCallback {
	g.refs.Add(1)
	return g
}

// Drop removes a holder, releasing the global reference with the last one.
func (g *GlobalCallback) Drop() {
	switch n := g.refs.Add(-1); {
	case n == 0:
		g.ref.Release()
	case n < 0:
		Logger().Warn("callback dropped too often", zap.Int64("refs", n))
	}
}

// argBuilder produces the arguments of one invocation on the invoking
// goroutine.
type argBuilder func(env *Env) ([]Ref, error)

func valueArgs(args []Value) argBuilder {
	return func(env *Env) ([]Ref, error) { return serializeArgs(env, nil, args) }
}

func serializeArgs(env *Env, head []Ref, args []Value) ([]Ref, error) {
	refs := append(make([]Ref, 0, len(head)+len(args)), head...)
	for _, a := range args {
		r, err := Serialize(env, a)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// InvokeCurrent invokes the callback on the calling goroutine, which must
// already be attached.
func (g *GlobalCallback) InvokeCurrent(args ...Value) (Ref, error) {
	env, err := g.vm.Env()
	if err != nil {
		return 0, err
	}
	return g.invokeWith(env, valueArgs(args))
}

// InvokeAnyThread invokes the callback from any goroutine, attaching for
// the call when needed.
func (g *GlobalCallback) InvokeAnyThread(args ...Value) error {
	return g.invokeAttached(valueArgs(args))
}

// Spawn invokes the callback on the worker and returns immediately.
func (g *GlobalCallback) Spawn(args ...Value) {
	g.spawnWith(valueArgs(args))
}

// Post invokes the callback on the VM's event loop.
func (g *GlobalCallback) Post(args ...Value) error {
	return g.postWith(valueArgs(args))
}

func (g *GlobalCallback) invokeAttached(build argBuilder) error {
	return g.vm.WithEnv(func(env *Env) error {
		return env.WithLocalScope(g.vm.opts.localCapacity, func() error {
			_, err := g.invokeWith(env, build)
			return err
		})
	})
}

func (g *GlobalCallback) spawnWith(build argBuilder) {
	g.Clone()
	spawn(func() {
		defer g.Drop()
		_ = g.invokeAttached(build)
	})
}

func (g *GlobalCallback) postWith(build argBuilder) error {
	g.Clone()
	err := g.vm.loop.PostDiscardable(func(env *Env) {
		defer g.Drop()
		_, _ = g.invokeWith(env, build)
	}, g.Drop)
	if err != nil {
		g.Drop()
	}
	return err
}

// invokeWith calls the function on env. Failures are logged, together with
// the description of any pending foreign error, and returned.
func (g *GlobalCallback) invokeWith(env *Env, build argBuilder) (Ref, error) {
	if g.ref.Released() {
		return 0, newError(AccessError, "invoke callback").name(g.Ref().String()).
			detail("callback already released").build()
	}
	args, err := build(env)
	if err == nil {
		var r Ref
		if r, err = env.CallFunction(g.Ref(), args...); err == nil {
			return r, nil
		}
	}
	fields := goroutineFields(zap.Stringer("callback", g.Ref()), zap.Error(err))
	if pending, perr := env.ExistUnhandledError(); perr == nil && pending {
		if msg, _ := env.DescribeError(); msg != "" {
			fields = append(fields, zap.String("foreign_error", msg))
		}
	}
	Logger().Error("failed to invoke callback", fields...)
	return 0, err
}

// AsyncCallback is a completion callback. Its first argument is a business
// error; success passes the Ok error.
type AsyncCallback struct {
	g *GlobalCallback
}

// AsyncCallback promotes fn to a completion callback.
func (e *Env) AsyncCallback(fn Ref) (*AsyncCallback, error) {
	g, err := e.Callback(fn).Global()
	if err != nil {
		return nil, err
	}
	return &AsyncCallback{g: g}, nil
}

func businessArgs(be *BusinessError, args []Value) argBuilder {
	if be == nil {
		be = Ok()
	}
	return func(env *Env) ([]Ref, error) {
		r, err := env.NewBusinessError(be)
		if err != nil {
			return nil, err
		}
		return serializeArgs(env, []Ref{r}, args)
	}
}

// Complete invokes the callback from any goroutine. A nil be reports
// success.
func (a *AsyncCallback) Complete(be *BusinessError, results ...Value) error {
	return a.g.invokeAttached(businessArgs(be, results))
}

// Spawn completes on the worker.
func (a *AsyncCallback) Spawn(be *BusinessError, results ...Value) {
	a.g.spawnWith(businessArgs(be, results))
}

// Post completes on the VM's event loop.
func (a *AsyncCallback) Post(be *BusinessError, results ...Value) error {
	return a.g.postWith(businessArgs(be, results))
}

// Global exposes the underlying handle.
func (a *AsyncCallback) Global() *GlobalCallback { return a.g }

func (a *AsyncCallback) Drop() { a.g.Drop() }

// ErrorCallback receives a single business error.
type ErrorCallback struct {
	g *GlobalCallback
}

// ErrorCallback promotes fn to an error callback.
func (e *Env) ErrorCallback(fn Ref) (*ErrorCallback, error) {
	g, err := e.Callback(fn).Global()
	if err != nil {
		return nil, err
	}
	return &ErrorCallback{g: g}, nil
}

// Report invokes the callback with be from any goroutine.
func (c *ErrorCallback) Report(be *BusinessError) error {
	return c.g.invokeAttached(businessArgs(be, nil))
}

func (c *ErrorCallback) Spawn(be *BusinessError) { c.g.spawnWith(businessArgs(be, nil)) }

func (c *ErrorCallback) Post(be *BusinessError) error {
	return c.g.postWith(businessArgs(be, nil))
}

func (c *ErrorCallback) Global() *GlobalCallback { return c.g }

func (c *ErrorCallback) Drop() { c.g.Drop() }
