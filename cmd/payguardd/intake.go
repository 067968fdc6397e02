package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"payguard/core/types"
	"payguard/gateway"
)

// maxIntakeLine bounds a single intent envelope.
const maxIntakeLine = 1 << 20

// intakeEnvelope is one line of work piped into the daemon: the acting user
// and the structured intent the upstream interpreter extracted from their
// utterance.
type intakeEnvelope struct {
	UserID string              `json:"user_id"`
	Intent types.PaymentIntent `json:"intent"`
}

type intentProcessor interface {
	Process(ctx context.Context, userID string, intent types.PaymentIntent) (*gateway.Response, error)
}

// runIntake reads newline-delimited JSON intent envelopes from in and writes
// one response line per envelope to out. Envelopes are handled sequentially
// so responses come back in request order. It returns when in is exhausted
// or ctx is cancelled; malformed lines produce an error response and do not
// stop the loop.
func runIntake(ctx context.Context, processor intentProcessor, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIntakeLine)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var envelope intakeEnvelope
		if err := json.Unmarshal(line, &envelope); err != nil {
			slog.Warn("intake: malformed envelope", "error", err)
			resp := &gateway.Response{
				Status:  gateway.StatusError,
				Message: fmt.Sprintf("Malformed intent envelope: %v", err),
			}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			continue
		}
		resp, err := processor.Process(ctx, envelope.UserID, envelope.Intent)
		if err != nil {
			return err
		}
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}
