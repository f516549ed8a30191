// request_context.go - Per-request step timing, token accounting and logging

package common

import (
	"time"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Step statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RequestContext follows one request through its steps (ocr, normalize,
// structure, ...). It is owned by the request goroutine and is not safe for
// concurrent use.
type RequestContext struct {
	RequestID string
	SessionID string
	StartTime time.Time
	Steps     []StepLog
	Tokens    TokenUsage

	current *StepLog
	subStep *SubStepLog
	logger  zerolog.Logger
}

// StepLog is one finished (or running) step.
type StepLog struct {
	Name       string       `json:"name"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Status     string       `json:"status"`
	Tokens     *TokenUsage  `json:"tokens,omitempty"`
	Error      string       `json:"error,omitempty"`
	SubSteps   []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog is a timed operation inside a step, e.g. one API call.
type SubStepLog struct {
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Details    string    `json:"details,omitempty"`
}

// TokenUsage is LLM token consumption and its price.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	CostTHB      float64 `json:"cost_thb"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
	u.CostTHB += other.CostTHB
}

// Summary is what a response reports about its own processing.
type Summary struct {
	RequestID   string           `json:"request_id"`
	SessionID   string           `json:"session_id,omitempty"`
	DurationSec float64          `json:"duration_sec"`
	Steps       map[string]int64 `json:"step_ms"`
	Completed   []string         `json:"completed_steps"`
	Running     string           `json:"running_step,omitempty"`
	Tokens      TokenUsage       `json:"token_usage"`
}

// NewRequestContext starts tracking a request on the global logger.
func NewRequestContext(sessionID string) *RequestContext {
	return NewRequestContextWithLogger(log.Logger, sessionID)
}

// NewRequestContextWithLogger is NewRequestContext with an explicit base logger.
func NewRequestContextWithLogger(base zerolog.Logger, sessionID string) *RequestContext {
	rc := &RequestContext{
		RequestID: uuid.NewString(),
		SessionID: sessionID,
		StartTime: time.Now(),
	}
	rc.logger = base.With().Str("request_id", rc.RequestID).Str("session_id", sessionID).Logger()
	rc.logger.Info().Msg("request started")
	return rc
}

// Logger returns the request-scoped logger.
func (rc *RequestContext) Logger() *zerolog.Logger {
	return &rc.logger
}

// StartStep opens a step. A step still open is closed as skipped.
func (rc *RequestContext) StartStep(name string) {
	if rc.current != nil {
		rc.EndStep(StatusSkipped, nil, nil)
	}
	rc.current = &StepLog{Name: name, StartedAt: time.Now()}
	rc.logger.Debug().Str("step", name).Msg("step started")
}

// EndStep closes the open step. Tokens count toward the request total
// whatever the status; a failed call may still have been billed.
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	step := rc.current
	if step == nil {
		return
	}
	rc.current = nil
	rc.subStep = nil

	step.DurationMs = time.Since(step.StartedAt).Milliseconds()
	step.Status = status
	step.Tokens = tokens
	if tokens != nil {
		rc.Tokens.Add(*tokens)
	}

	var event *zerolog.Event
	if err != nil {
		step.Error = err.Error()
		event = rc.logger.Error().Err(err)
	} else {
		event = rc.logger.Info()
	}
	event = event.Str("step", step.Name).Str("status", status).Int64("duration_ms", step.DurationMs)
	if tokens != nil {
		event = event.Int("input_tokens", tokens.InputTokens).
			Int("output_tokens", tokens.OutputTokens).
			Float64("cost_thb", tokens.CostTHB)
	}
	event.Int("sub_steps", len(step.SubSteps)).Msg("step finished")

	rc.Steps = append(rc.Steps, *step)
}

// StartSubStep opens a sub-step inside the current step.
func (rc *RequestContext) StartSubStep(name string) {
	rc.subStep = &SubStepLog{Name: name, StartedAt: time.Now()}
}

// EndSubStep closes the open sub-step with a short detail string.
func (rc *RequestContext) EndSubStep(details string) {
	sub := rc.subStep
	if sub == nil {
		return
	}
	rc.subStep = nil

	sub.DurationMs = time.Since(sub.StartedAt).Milliseconds()
	sub.Details = details

	stepName := ""
	if rc.current != nil {
		stepName = rc.current.Name
		rc.current.SubSteps = append(rc.current.SubSteps, *sub)
	}
	rc.logger.Debug().
		Str("step", stepName).
		Str("sub_step", sub.Name).
		Int64("duration_ms", sub.DurationMs).
		Str("details", details).
		Msg("sub-step finished")
}

// LogInfo logs at info level with the request fields.
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	rc.logger.Info().Msgf(format, args...)
}

// LogWarning logs at warn level with the request fields.
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	rc.logger.Warn().Msgf(format, args...)
}

// LogError logs at error level with the request fields.
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	rc.logger.Error().Msgf(format, args...)
}

// CalculateOCRTokenCost prices tokens spent reading an image.
func CalculateOCRTokenCost(inputTokens, outputTokens int) TokenUsage {
	return priceTokens(inputTokens, outputTokens,
		configs.OCR_INPUT_PRICE_PER_MILLION, configs.OCR_OUTPUT_PRICE_PER_MILLION)
}

// CalculateStructureTokenCost prices tokens spent structuring invoice text.
func CalculateStructureTokenCost(inputTokens, outputTokens int) TokenUsage {
	return priceTokens(inputTokens, outputTokens,
		configs.STRUCTURE_INPUT_PRICE_PER_MILLION, configs.STRUCTURE_OUTPUT_PRICE_PER_MILLION)
}

func priceTokens(in, out int, inPerMillion, outPerMillion float64) TokenUsage {
	usd := (float64(in)*inPerMillion + float64(out)*outPerMillion) / 1e6
	return TokenUsage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		CostUSD:      usd,
		CostTHB:      usd * configs.USD_TO_THB,
	}
}

// Summary reports the request so far and logs it. It can be called while a
// step is still running, e.g. when the request times out.
func (rc *RequestContext) Summary() Summary {
	elapsed := time.Since(rc.StartTime)

	s := Summary{
		RequestID:   rc.RequestID,
		SessionID:   rc.SessionID,
		DurationSec: elapsed.Seconds(),
		Steps:       make(map[string]int64, len(rc.Steps)),
		Completed:   []string{},
		Tokens:      rc.Tokens,
	}
	for _, step := range rc.Steps {
		s.Steps[step.Name] = step.DurationMs
		if step.Status == StatusSuccess {
			s.Completed = append(s.Completed, step.Name)
		}
	}
	if rc.current != nil {
		s.Running = rc.current.Name
	}

	rc.logger.Info().
		Dur("elapsed", elapsed).
		Int("steps", len(rc.Steps)).
		Int("total_tokens", rc.Tokens.TotalTokens).
		Float64("cost_thb", rc.Tokens.CostTHB).
		Msg("request summary")

	return s
}
