package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clawdash/clock"
	"clawdash/middleware"
)

// RegisterDefaultMethods installs canned answers for the methods the dashboard calls:
// channels.status and sessions.usage. Usage figures are synthetic but deterministic, so
// the same date range always produces the same numbers.
func RegisterDefaultMethods(s *Server, clk clock.Clock) {
	started := clk.Now()

	s.Register("channels.status", func(ctx context.Context, req *middleware.Request) (json.RawMessage, error) {
		return json.Marshal(map[string]any{
			"uptimeMs": clk.Now().Sub(started).Milliseconds(),
			"channels": []any{},
		})
	})

	s.Register("sessions.usage", func(ctx context.Context, req *middleware.Request) (json.RawMessage, error) {
		start, err := dateParam(req.Params, "startDate")
		if err != nil {
			return nil, err
		}
		end, err := dateParam(req.Params, "endDate")
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, &Error{Code: CodeInvalidRequest, Message: "endDate before startDate"}
		}
		return json.Marshal(syntheticUsage(start, end, clk.Now()))
	})
}

func dateParam(params map[string]any, name string) (time.Time, error) {
	raw, _ := params[name].(string)
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return t, nil
}

// syntheticUsage follows the shape of the gateway's sessions.usage answer: totals, plus
// aggregates by message role, by model and by day. Day n of the epoch gets a load
// factor of 1..7, so weekly patterns show up on the chart.
func syntheticUsage(start, end, now time.Time) map[string]any {
	var (
		daily              []map[string]any
		totalCost          float64
		totalTokens, total int
	)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		factor := int(d.Unix()/86400)%7 + 1
		cost := 0.12 * float64(factor)
		tokens := 1500 * factor
		messages := 8 * factor
		daily = append(daily, map[string]any{
			"date":      d.Format(time.DateOnly),
			"tokens":    tokens,
			"cost":      cost,
			"messages":  messages,
			"toolCalls": 2 * factor,
			"errors":    0,
		})
		totalCost += cost
		totalTokens += tokens
		total += messages
	}

	model := func(name, provider string, share float64, messages int) map[string]any {
		return map[string]any{
			"model":    name,
			"provider": provider,
			"totals": map[string]any{
				"totalCost":   totalCost * share,
				"totalTokens": int(float64(totalTokens) * share),
			},
			"messageCount": messages,
		}
	}
	primary := total * 7 / 10

	return map[string]any{
		"updatedAt": now.UnixMilli(),
		"startDate": start.Format(time.DateOnly),
		"endDate":   end.Format(time.DateOnly),
		"sessions":  []any{},
		"totals": map[string]any{
			"totalTokens": totalTokens,
			"totalCost":   totalCost,
			"inputCost":   totalCost * 0.4,
			"outputCost":  totalCost * 0.6,
		},
		"aggregates": map[string]any{
			"messages": map[string]any{
				"total":       total,
				"user":        total / 2,
				"assistant":   total - total/2,
				"toolCalls":   total / 4,
				"toolResults": total / 4,
				"errors":      0,
			},
			"byModel": []any{
				model("claude-sonnet-4", "anthropic", 0.7, primary),
				model("tinyllama:1.1b", "ollama", 0.3, total-primary),
			},
			"daily": daily,
		},
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// remarshal converts a decoded params value into a typed struct.
func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func randomNonce() string {
	return uuid.NewString()
}
