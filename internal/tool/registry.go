// Package tool merges built-in function specs with tenant-registered
// ones and dispatches model-requested invocations against them.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/storebot/internal/llm"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/pkg/logger"
	"github.com/capitalize-ai/storebot/pkg/metrics"
)

// Executor runs one tool invocation. Arguments arrive as the raw JSON
// the model produced.
type Executor func(ctx context.Context, args json.RawMessage) (string, error)

// entry pairs a spec with its executor.
type entry struct {
	spec    llm.ToolSpec
	exec    Executor
	builtin bool
}

// Registry is a per-request merge of static built-in tools and
// tenant-registered remote tools. It is constructed fresh for every
// request; nothing in it is shared or mutated across requests.
type Registry struct {
	entries map[string]entry
	order   []string
	logger  *logger.Logger
}

// NewRegistry creates a registry holding the given built-in tools.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{entries: make(map[string]entry), logger: log}
}

// RegisterBuiltin adds a built-in tool. Built-ins win name collisions
// against tenant tools regardless of registration order.
func (r *Registry) RegisterBuiltin(spec llm.ToolSpec, exec Executor) {
	if existing, ok := r.entries[spec.Name]; ok && existing.builtin {
		return
	}
	if _, ok := r.entries[spec.Name]; !ok {
		r.order = append(r.order, spec.Name)
	}
	r.entries[spec.Name] = entry{spec: spec, exec: exec, builtin: true}
}

// RegisterTenant adds a tenant-registered tool bound to a remote
// endpoint. Silently ignored when a built-in already owns the name.
func (r *Registry) RegisterTenant(binding model.ToolBinding, delegate *RemoteDelegate) {
	if existing, ok := r.entries[binding.Name]; ok && existing.builtin {
		r.logger.Warn("tenant tool shadowed by built-in", zap.String("tool", binding.Name))
		return
	}
	if _, ok := r.entries[binding.Name]; !ok {
		r.order = append(r.order, binding.Name)
	}
	endpoint := binding.Endpoint
	r.entries[binding.Name] = entry{
		spec: llm.ToolSpec{
			Name:        binding.Name,
			Description: binding.Description,
			Parameters:  binding.Parameters,
		},
		exec: func(ctx context.Context, args json.RawMessage) (string, error) {
			return delegate.Invoke(ctx, endpoint, binding.Name, args)
		},
	}
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Specs returns all tool specs in registration order, for handing to the
// model.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.entries[name].spec)
	}
	return specs
}

// Result is one tool invocation outcome, fed back to the model as a
// tool-role message.
type Result struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Dispatch executes one invocation with a per-call failure boundary: a
// failed or unknown tool yields a structured error payload, never an
// error that would abort sibling invocations.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) Result {
	e, ok := r.entries[call.Name]
	if !ok {
		return errorResult(call, fmt.Sprintf("unknown tool %q", call.Name))
	}

	content, err := e.exec(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", call.Name), zap.Error(err))
		metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		return errorResult(call, err.Error())
	}

	metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "ok").Inc()
	return Result{CallID: call.ID, Name: call.Name, Content: content}
}

// DispatchAll executes a batch of invocations concurrently. Results are
// returned in invocation order; invocations are independent of each
// other.
func (r *Registry) DispatchAll(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = r.Dispatch(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func errorResult(call llm.ToolCall, msg string) Result {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return Result{CallID: call.ID, Name: call.Name, Content: string(payload), IsError: true}
}
