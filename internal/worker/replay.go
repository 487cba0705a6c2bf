package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/triage/internal/pipeline"
)

// Handler processes one message of a session
type Handler interface {
	Handle(ctx context.Context, sessionID string, req pipeline.Request) (pipeline.Response, error)
}

// ScriptTurn is one scripted user message
type ScriptTurn struct {
	Message string `yaml:"message"`
	Reset   bool   `yaml:"reset,omitempty"`
}

// Expectation is checked against the final response of a script.
// Nil fields are not checked.
type Expectation struct {
	Emergency *bool    `yaml:"emergency,omitempty"`
	Concluded *bool    `yaml:"concluded,omitempty"`
	City      string   `yaml:"city,omitempty"`
	Contains  []string `yaml:"contains,omitempty"`
}

// Script is a scripted conversation
type Script struct {
	Name   string       `yaml:"name"`
	Turns  []ScriptTurn `yaml:"turns"`
	Expect Expectation  `yaml:"expect"`
}

type scriptFile struct {
	Scripts []Script `yaml:"scripts"`
}

// LoadScripts reads scripts from a YAML file
func LoadScripts(path string) ([]Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts: %w", err)
	}
	return ParseScripts(data)
}

// ParseScripts decodes one or more YAML documents. Each document is either a
// single script or a mapping with a scripts list.
func ParseScripts(data []byte) ([]Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var scripts []Script
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse scripts: %w", err)
		}

		var file scriptFile
		if err := node.Decode(&file); err == nil && len(file.Scripts) > 0 {
			scripts = append(scripts, file.Scripts...)
			continue
		}

		var s Script
		if err := node.Decode(&s); err != nil {
			return nil, fmt.Errorf("parse scripts: %w", err)
		}
		if len(s.Turns) > 0 {
			scripts = append(scripts, s)
		}
	}

	for i := range scripts {
		if scripts[i].Name == "" {
			scripts[i].Name = fmt.Sprintf("script-%d", i+1)
		}
	}
	if len(scripts) == 0 {
		return nil, errors.New("parse scripts: no scripts found")
	}
	return scripts, nil
}

// ReplayResult is the outcome of one script
type ReplayResult struct {
	Index     int
	Script    string
	SessionID string
	Responses []pipeline.Response
	Failures  []string
	Error     error
	Duration  time.Duration
}

// GetError implements Result
func (r *ReplayResult) GetError() error {
	return r.Error
}

// Passed reports whether the script ran and met every expectation
func (r *ReplayResult) Passed() bool {
	return r.Error == nil && len(r.Failures) == 0
}

// Final returns the last response, or the zero value
func (r *ReplayResult) Final() pipeline.Response {
	if len(r.Responses) == 0 {
		return pipeline.Response{}
	}
	return r.Responses[len(r.Responses)-1]
}

// ReplayJob runs one script in its own session
type ReplayJob struct {
	Index   int
	Script  Script
	Handler Handler
	Limiter *Limiter
}

// Execute implements Job
func (j *ReplayJob) Execute(ctx context.Context) Result {
	start := time.Now()
	result := &ReplayResult{
		Index:     j.Index,
		Script:    j.Script.Name,
		SessionID: "replay-" + uuid.NewString(),
	}

	for i, turn := range j.Script.Turns {
		if err := ctx.Err(); err != nil {
			result.Error = fmt.Errorf("turn %d: %w", i+1, err)
			break
		}
		if j.Limiter != nil {
			if err := j.Limiter.Wait(ctx, result.SessionID); err != nil {
				result.Error = fmt.Errorf("turn %d: %w", i+1, err)
				break
			}
		}
		resp, err := j.Handler.Handle(ctx, result.SessionID, pipeline.Request{
			Message: turn.Message,
			Reset:   turn.Reset,
		})
		if err != nil {
			result.Error = fmt.Errorf("turn %d: %w", i+1, err)
			break
		}
		result.Responses = append(result.Responses, resp)
	}

	if result.Error == nil {
		result.Failures = j.Script.Expect.Check(result.Final())
	}
	result.Duration = time.Since(start)
	return result
}

// Check returns a description of every unmet expectation
func (e Expectation) Check(resp pipeline.Response) []string {
	var failures []string
	if e.Emergency != nil && *e.Emergency != resp.Emergency {
		failures = append(failures, fmt.Sprintf("emergency: want %t, got %t", *e.Emergency, resp.Emergency))
	}
	if e.Concluded != nil && *e.Concluded != resp.Concluded {
		failures = append(failures, fmt.Sprintf("concluded: want %t, got %t", *e.Concluded, resp.Concluded))
	}
	if e.City != "" && !strings.EqualFold(e.City, resp.City) {
		failures = append(failures, fmt.Sprintf("city: want %q, got %q", e.City, resp.City))
	}
	lower := strings.ToLower(resp.Response)
	for _, s := range e.Contains {
		if !strings.Contains(lower, strings.ToLower(s)) {
			failures = append(failures, fmt.Sprintf("response does not contain %q", s))
		}
	}
	return failures
}

// ReplayProcessor runs scripts concurrently
type ReplayProcessor struct {
	handler Handler
	limiter *Limiter
	workers int
	logger  *zap.Logger
}

// NewReplayProcessor creates a processor. limiter may be nil.
func NewReplayProcessor(handler Handler, workers int, limiter *Limiter, logger *zap.Logger) *ReplayProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayProcessor{
		handler: handler,
		limiter: limiter,
		workers: workers,
		logger:  logger,
	}
}

// Run replays every script and returns the results in input order
func (p *ReplayProcessor) Run(ctx context.Context, scripts []Script) []*ReplayResult {
	pool := NewPool(ctx, p.workers)
	pool.Start()

	submitted := 0
	for i, s := range scripts {
		if !pool.Submit(&ReplayJob{Index: i, Script: s, Handler: p.handler, Limiter: p.limiter}) {
			break
		}
		submitted++
	}

	out := make([]*ReplayResult, len(scripts))
	for _, r := range pool.Wait() {
		rr := r.(*ReplayResult)
		out[rr.Index] = rr
		p.logger.Debug("script replayed",
			zap.String("script", rr.Script),
			zap.Bool("passed", rr.Passed()),
			zap.Duration("duration", rr.Duration))
	}

	for i := range out {
		if out[i] == nil {
			out[i] = &ReplayResult{Index: i, Script: scripts[i].Name, Error: context.Canceled}
			if err := ctx.Err(); err != nil {
				out[i].Error = err
			}
		}
	}
	if submitted < len(scripts) {
		p.logger.Warn("replay cancelled", zap.Int("submitted", submitted), zap.Int("total", len(scripts)))
	}
	return out
}
