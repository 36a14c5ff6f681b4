// Package analyst runs the question loop: it asks the model, executes the
// queries the model requests, feeds the results back and stops once the model
// answers in plain prose or the iteration budget runs out.
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlanalyst/sqlanalyst/internal/inference"
	"github.com/sqlanalyst/sqlanalyst/internal/observability"
	"github.com/sqlanalyst/sqlanalyst/internal/toolcall"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

const (
	DefaultMaxLoops = 5
	FallbackAnswer  = "Could not produce a final answer within the allowed iterations."
	apiErrorPrefix  = "API error: "
)

// Executor runs one model-requested statement. *warehouse.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, sql string) warehouse.Result
}

// Conversation is the state carried between questions of one conversation.
type Conversation struct {
	Token string
}

type Answer struct {
	Text string
	// Queries counts tool calls that executed successfully.
	Queries    int
	Iterations int
	Exhausted  bool
	Err        error
	Elapsed    time.Duration
}

type Config struct {
	Client       inference.Client
	SystemPrompt string
	MaxLoops     int
	Logger       *slog.Logger
}

type Agent struct {
	client       inference.Client
	systemPrompt string
	maxLoops     int
	logger       *slog.Logger
	now          func() time.Time
}

func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("inference client is required")
	}
	maxLoops := cfg.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Agent{
		client:       cfg.Client,
		systemPrompt: cfg.SystemPrompt,
		maxLoops:     maxLoops,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

func (a *Agent) MaxLoops() int {
	return a.maxLoops
}

// WithSystemPrompt returns a copy of the agent that sends systemPrompt.
func (a *Agent) WithSystemPrompt(systemPrompt string) *Agent {
	clone := *a
	clone.systemPrompt = systemPrompt
	return &clone
}

// Ask answers one question. conv.Token is read before the first call and
// replaced whenever the model returns a new session token. Inference failures
// end the question immediately; query failures are fed back to the model.
func (a *Agent) Ask(ctx context.Context, conv *Conversation, exec Executor, question string, observers ...QueryObserver) Answer {
	if conv == nil {
		conv = &Conversation{}
	}
	start := a.now()
	answer := Answer{Text: FallbackAnswer, Exhausted: true}
	payload := question

	for iteration := 1; iteration <= a.maxLoops; iteration++ {
		answer.Iterations = iteration

		callStart := a.now()
		reply, err := a.client.Call(ctx, inference.Turn{
			Content:      payload,
			SystemPrompt: a.systemPrompt,
			SessionToken: conv.Token,
		})
		observability.ObserveInferenceCall(inference.Outcome(err), a.now().Sub(callStart))
		if err != nil {
			a.logger.ErrorContext(ctx, "inference call failed",
				slog.Int("iteration", iteration),
				slog.String("error", err.Error()),
			)
			answer.Text = apiErrorPrefix + err.Error()
			answer.Err = err
			answer.Exhausted = false
			answer.Elapsed = a.now().Sub(start)
			observability.ObserveAsk("api_error", iteration)
			return answer
		}
		if reply.SessionToken != "" {
			conv.Token = reply.SessionToken
		}
		a.logger.DebugContext(ctx, "inference reply",
			slog.Int("iteration", iteration),
			slog.Int("chars", len(reply.Text)),
		)

		calls := toolcall.Extract(reply.Text)
		if len(calls) == 0 {
			answer.Text = toolcall.Strip(reply.Text)
			answer.Exhausted = false
			answer.Elapsed = a.now().Sub(start)
			observability.ObserveAsk("answered", iteration)
			return answer
		}

		var results strings.Builder
		for _, call := range calls {
			result := exec.Execute(ctx, call.SQL)
			observability.ObserveQuery(string(result.Failure), result.ElapsedSec)
			if !result.Failed() {
				answer.Queries++
				a.logger.InfoContext(ctx, "query executed",
					slog.String("description", call.Description),
					slog.Int("row_count", result.RowCount),
					slog.Float64("elapsed_sec", result.ElapsedSec),
				)
			}
			for _, observer := range observers {
				observer.ObserveQuery(ctx, call, result)
			}
			writeResult(&results, call, result)
		}

		payload = followUp(question, toolcall.Strip(reply.Text), results.String())
	}

	answer.Elapsed = a.now().Sub(start)
	observability.ObserveAsk("exhausted", answer.Iterations)
	a.logger.WarnContext(ctx, "iteration budget exhausted", slog.Int("max_loops", a.maxLoops))
	return answer
}

func writeResult(b *strings.Builder, call toolcall.Call, result warehouse.Result) {
	_, _ = fmt.Fprintf(b, "\n[Result for: %s]\n", call.Description)
	if result.Failed() {
		_, _ = fmt.Fprintf(b, "ERROR: %s\n", result.Err)
		return
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(b, "ERROR: encode result: %s\n", err)
		return
	}
	_, _ = fmt.Fprintf(b, "```json\n%s\n```\n", encoded)
}

func followUp(question, narrative, results string) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "Original question: %s\n", question)
	if narrative != "" {
		_, _ = fmt.Fprintf(&b, "\nYour earlier analysis:\n%s\n", narrative)
	}
	_, _ = fmt.Fprintf(&b, "\nWarehouse query results:\n%s\n\n", results)
	b.WriteString("Using the data above, write a clear, concise business-narrative answer to the original question. ")
	b.WriteString("Do NOT output any <tool_call> blocks.")
	return b.String()
}
