package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"promptforge/internal/logging"
	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// schemaReminder is appended to repair prompts so the model sees the exact
// contract again without the surrounding conversation.
const schemaReminder = `The JSON object must contain exactly:
  "improved_prompt": string (non-empty)
  "clarifying_questions": array of string (at most 3)
  "assumptions": array of string (at most 5)
  "confidence": number between 0.0 and 1.0`

// GenerateOpts controls one structured generation call.
type GenerateOpts struct {
	Model         string
	FallbackModel string
	TimeoutMS     int
	Temperature   float64

	// MaxAttempts bounds the generate+repair loop; capped at 2.
	MaxAttempts int

	// EnableAutoRepair toggles the repair retry.
	EnableAutoRepair bool

	// OriginalIdea is restated verbatim in repair prompts.
	OriginalIdea string
}

// StructuredClient issues chat calls and returns schema-validated
// ImprovementResults, repairing and falling back per the error taxonomy.
type StructuredClient struct {
	transport Transport
	schema    *ResultSchema
	validator *quality.Validator
}

// NewStructuredClient wires a transport to the result schema and the quality
// validator.
func NewStructuredClient(transport Transport, schema *ResultSchema, validator *quality.Validator) *StructuredClient {
	return &StructuredClient{transport: transport, schema: schema, validator: validator}
}

// Backend returns the underlying transport's name.
func (c *StructuredClient) Backend() string { return c.transport.Name() }

// Generate runs the full extract-validate-repair pipeline for one call. On a
// fallback-worthy failure the whole call is reissued once with the fallback
// model. The repair retry runs under the remaining deadline, never a fresh
// one. Cancellation surfaces as context.Canceled, untouched.
func (c *StructuredClient) Generate(ctx context.Context, system, user string, opts GenerateOpts) (types.ImprovementResult, error) {
	if opts.MaxAttempts <= 0 || opts.MaxAttempts > 2 {
		opts.MaxAttempts = 2
	}
	if opts.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	result, err := c.generateWithModel(ctx, system, user, opts.Model, opts)
	if err == nil {
		return result, nil
	}

	if opts.FallbackModel != "" && opts.FallbackModel != opts.Model && IsFallbackWorthy(err) {
		logging.Engine("Primary model %s failed (%s); retrying with fallback %s",
			opts.Model, KindOf(err), opts.FallbackModel)
		fbResult, fbErr := c.generateWithModel(ctx, system, user, opts.FallbackModel, opts)
		if fbErr == nil {
			return fbResult, nil
		}
		return types.ImprovementResult{}, fbErr
	}

	return types.ImprovementResult{}, err
}

// generateWithModel runs the attempt loop (initial call plus at most one
// repair) against a single model.
func (c *StructuredClient) generateWithModel(ctx context.Context, system, user, model string, opts GenerateOpts) (types.ImprovementResult, error) {
	start := time.Now()
	meta := CallMeta{Model: model}
	sys, usr := system, user

	var lastErr *Error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		meta.Attempt = attempt

		body, err := c.transport.Complete(ctx, Request{
			System:      sys,
			User:        usr,
			Model:       model,
			Temperature: opts.Temperature,
		})
		meta.LatencyMS = time.Since(start).Milliseconds()
		if err != nil {
			// Transport failures are never repairable at this layer.
			if e, ok := err.(*Error); ok {
				e.Meta = meta
			}
			return types.ImprovementResult{}, err
		}

		jsonText, method, ok := ExtractJSON(body)
		if !ok {
			lastErr = &Error{
				Kind:      KindNonJSON,
				Msg:       "no JSON object found in model output",
				RawOutput: body,
				Meta:      meta,
			}
			if c.canRepair(opts, attempt) {
				sys, usr = buildSchemaRepairPrompt(body, "output contained no parseable JSON object", opts.OriginalIdea)
				meta.UsedRepair = true
				continue
			}
			return types.ImprovementResult{}, lastErr
		}
		meta.ExtractionMethod = method
		meta.UsedExtraction = method != MethodStrict

		result, decErr := c.schema.Decode(jsonText)
		if decErr != nil {
			if e, ok := decErr.(*Error); ok {
				e.Meta = meta
				lastErr = e
			} else {
				lastErr = &Error{Kind: KindSchema, Msg: decErr.Error(), RawOutput: body, Meta: meta}
			}
			if c.canRepair(opts, attempt) {
				sys, usr = buildSchemaRepairPrompt(body, lastErr.ValidatorErr, opts.OriginalIdea)
				meta.UsedRepair = true
				continue
			}
			return types.ImprovementResult{}, lastErr
		}

		// Quality gate: recoverable on attempt 1, fatal on attempt 2.
		if violation := c.validator.ValidatePrompt(result.ImprovedPrompt); violation != nil {
			lastErr = &Error{
				Kind:         KindQualityGate,
				Msg:          "output failed the quality gate",
				RawOutput:    body,
				ValidatorErr: violation.Error(),
				Meta:         meta,
			}
			if c.canRepair(opts, attempt) {
				sys, usr = c.validator.BuildRepairPrompt(body, violation, opts.OriginalIdea)
				meta.UsedRepair = true
				continue
			}
			return types.ImprovementResult{}, lastErr
		}

		result.Meta = types.ResultMeta{
			Backend:          c.transport.Name(),
			Model:            model,
			Attempt:          meta.Attempt,
			UsedExtraction:   meta.UsedExtraction,
			UsedRepair:       meta.UsedRepair,
			ExtractionMethod: meta.ExtractionMethod,
			LatencyMS:        meta.LatencyMS,
		}
		logging.Engine("Generate ok: model=%s attempt=%d method=%s repair=%v latency=%dms",
			model, meta.Attempt, meta.ExtractionMethod, meta.UsedRepair, meta.LatencyMS)
		return result, nil
	}

	// Loop exit only happens after a failed repair attempt.
	if lastErr != nil {
		return types.ImprovementResult{}, lastErr
	}
	return types.ImprovementResult{}, &Error{Kind: KindInternal, Msg: "generate loop exhausted without a verdict", Meta: meta}
}

func (c *StructuredClient) canRepair(opts GenerateOpts, attempt int) bool {
	return opts.EnableAutoRepair && attempt < opts.MaxAttempts
}

// buildSchemaRepairPrompt constructs the retry messages after an extraction
// or schema failure: prior output verbatim, the specific error, and the
// original idea.
func buildSchemaRepairPrompt(invalidOutput, reason, originalIdea string) (system, user string) {
	system = "You repair invalid prompt-improvement output. Return ONLY valid JSON matching the schema; no prose, no fences."

	var sb strings.Builder
	sb.WriteString("Your previous output was invalid.\n\nError: ")
	if reason == "" {
		reason = "output did not match the required schema"
	}
	sb.WriteString(reason)
	sb.WriteString("\n\nPrevious output:\n")
	sb.WriteString(invalidOutput)
	sb.WriteString("\n\n")
	sb.WriteString(schemaReminder)
	if originalIdea != "" {
		sb.WriteString(fmt.Sprintf("\n\nOriginal user idea (unchanged):\n%s", originalIdea))
	}
	sb.WriteString("\n\nReturn ONLY valid JSON matching the schema; no prose, no fences.")
	return system, sb.String()
}
