// Package orchestrator runs the conversational pipeline for one inbound
// message: sanitize, classify, assemble the tenant context, drive the
// bounded tool-calling loop against the model, and post-process the
// answer.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/storebot/internal/intent"
	"github.com/capitalize-ai/storebot/internal/llm"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/prompt"
	"github.com/capitalize-ai/storebot/internal/sanitize"
	"github.com/capitalize-ai/storebot/internal/store"
	"github.com/capitalize-ai/storebot/internal/tool"
	"github.com/capitalize-ai/storebot/pkg/logger"
	"github.com/capitalize-ai/storebot/pkg/metrics"
)

// Fixed replies. The deflection answers meaningless input without a
// model call; the apology covers model-side failures.
const (
	DeflectionReply = "不好意思，我不太明白您的意思，可以換個方式再說一次嗎？"
	ApologyReply    = "不好意思，系統暫時忙線中，請稍後再試一次。"
)

// historyLimit is the number of prior turns loaded as context.
const historyLimit = 20

// logTimeout bounds the detached turn-logging writes.
const logTimeout = 5 * time.Second

// Input carries everything one pipeline turn needs.
type Input struct {
	Tenant *model.Tenant
	UserID string
	Text   string

	FunnelStep string
	FocusField string
	Overlay    prompt.Overlay

	// History, when non-nil, replaces the stored conversation history.
	// Used by the stateless endpoint where history is request-scoped.
	History []llm.ChatMessage

	// Master marks the platform-selling persona; its completion calls
	// carry a configured timeout.
	Master bool
}

// Orchestrator is the pipeline state machine. One Turn call never makes
// more than two completion calls.
type Orchestrator struct {
	classifier    *intent.Classifier
	assembler     *prompt.Assembler
	builtins      tool.Builtins
	delegate      *tool.RemoteDelegate
	llmClient     llm.Client
	turns         store.TenantStore
	logger        *logger.Logger
	masterTimeout time.Duration
}

// New creates an orchestrator.
func New(
	classifier *intent.Classifier,
	assembler *prompt.Assembler,
	builtins tool.Builtins,
	delegate *tool.RemoteDelegate,
	llmClient llm.Client,
	turns store.TenantStore,
	masterTimeout time.Duration,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		classifier:    classifier,
		assembler:     assembler,
		builtins:      builtins,
		delegate:      delegate,
		llmClient:     llmClient,
		turns:         turns,
		masterTimeout: masterTimeout,
		logger:        log,
	}
}

// Turn runs the whole pipeline for one inbound message. It always
// produces a reply: rejected input gets the fixed deflection and model
// failures the fixed apology, never a raw error.
func (o *Orchestrator) Turn(ctx context.Context, in Input) *model.Reply {
	clean, meaningless, filtered := sanitize.CheckInput(in.Text)
	if meaningless {
		metrics.TurnsTotal.WithLabelValues(in.Tenant.ID, "deflected").Inc()
		return &model.Reply{Text: DeflectionReply, Meta: model.DefaultMeta()}
	}
	if filtered {
		o.logger.Info("input truncated", zap.String("tenant_id", in.Tenant.ID))
	}

	classified := o.classifier.Classify(ctx, clean)
	metrics.IntentsTotal.WithLabelValues(string(classified.Kind), boolLabel(classified.Pending)).Inc()

	registry := tool.BuildRegistry(in.Tenant, o.builtins, o.delegate, o.logger)

	// A pending intent whose tool isn't exposed to this tenant cannot be
	// forced; fall back to plain chat.
	if classified.Pending && !registry.Has(classified.ToolName) {
		classified = model.Intent{Kind: model.IntentChat}
	}

	system, err := o.assembler.Assemble(ctx, in.Tenant, prompt.Request{
		FunnelStep: in.FunnelStep,
		FocusField: in.FocusField,
		Overlay:    in.Overlay,
		Intent:     classified,
	})
	if err != nil {
		o.logger.Error("prompt assembly failed", zap.String("tenant_id", in.Tenant.ID), zap.Error(err))
		metrics.TurnsTotal.WithLabelValues(in.Tenant.ID, "error").Inc()
		return &model.Reply{Text: ApologyReply, Meta: model.DefaultMeta()}
	}

	history := in.History
	if history == nil {
		history = o.loadHistory(ctx, in.Tenant.ID, in.UserID)
	}

	messages := append(history, llm.ChatMessage{Role: string(model.RoleUser), Content: clean})

	forceTool := ""
	if classified.Pending {
		forceTool = classified.ToolName
	}

	callCtx := ctx
	if in.Master && o.masterTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.masterTimeout)
		defer cancel()
	}

	resp, err := o.complete(callCtx, &llm.CompletionRequest{
		System:    system,
		Messages:  messages,
		Tools:     registry.Specs(),
		ForceTool: forceTool,
	})
	if err != nil {
		o.logger.Error("completion failed", zap.String("tenant_id", in.Tenant.ID), zap.Error(err))
		metrics.TurnsTotal.WithLabelValues(in.Tenant.ID, "error").Inc()
		return &model.Reply{Text: ApologyReply, Meta: model.DefaultMeta()}
	}

	final := resp.Content
	if len(resp.ToolCalls) > 0 {
		results := registry.DispatchAll(ctx, resp.ToolCalls)

		messages = append(messages, llm.ChatMessage{
			Role:      string(model.RoleAssistant),
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, res := range results {
			messages = append(messages, llm.ChatMessage{
				Role:       string(model.RoleTool),
				Content:    res.Content,
				ToolCallID: res.CallID,
			})
		}

		// Second, tool-free completion closes the loop. Never recursive.
		second, err := o.complete(callCtx, &llm.CompletionRequest{
			System:   system,
			Messages: messages,
		})
		if err != nil {
			o.logger.Error("post-tool completion failed", zap.String("tenant_id", in.Tenant.ID), zap.Error(err))
			metrics.TurnsTotal.WithLabelValues(in.Tenant.ID, "error").Inc()
			return &model.Reply{Text: ApologyReply, Meta: model.DefaultMeta()}
		}
		final = second.Content
	}

	text, meta := sanitize.Postprocess(final)
	if text == "" {
		text = DeflectionReply
	}

	// Turn logging never delays or fails the reply.
	if in.History == nil {
		o.logTurns(in.Tenant.ID, in.UserID, clean, text)
	}

	metrics.TurnsTotal.WithLabelValues(in.Tenant.ID, "ok").Inc()
	return &model.Reply{Text: text, Meta: meta}
}

// complete wraps one completion call with metrics.
func (o *Orchestrator) complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := o.llmClient.Complete(ctx, req)
	if err != nil {
		metrics.LLMCallDuration.WithLabelValues(req.Model, "error").Observe(0)
		return nil, err
	}
	metrics.RecordLLMCall(resp.Model, "ok", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

// loadHistory reads recent turns, degrading to an empty history on
// storage failure.
func (o *Orchestrator) loadHistory(ctx context.Context, tenantID, userID string) []llm.ChatMessage {
	turns, err := o.turns.RecentTurns(ctx, tenantID, userID, historyLimit)
	if err != nil {
		o.logger.Warn("history fetch failed, continuing without it",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}

	// RecentTurns is newest-first; the model wants chronological order.
	history := make([]llm.ChatMessage, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role != model.RoleUser && t.Role != model.RoleAssistant {
			continue
		}
		history = append(history, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return history
}

// logTurns persists the user and assistant turns on a detached context;
// a write failure is observed only through logging.
func (o *Orchestrator) logTurns(tenantID, userID, userText, assistantText string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), logTimeout)
		defer cancel()

		now := time.Now()
		turns := []*model.Turn{
			{ID: uuid.Must(uuid.NewV7()).String(), TenantID: tenantID, UserID: userID,
				Role: model.RoleUser, Content: userText, CreatedAt: now},
			{ID: uuid.Must(uuid.NewV7()).String(), TenantID: tenantID, UserID: userID,
				Role: model.RoleAssistant, Content: assistantText, CreatedAt: now},
		}
		for _, turn := range turns {
			if err := o.turns.AppendTurn(ctx, turn); err != nil {
				o.logger.Warn("turn logging failed",
					zap.String("tenant_id", tenantID), zap.Error(err))
				return
			}
		}
	}()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
