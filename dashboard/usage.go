package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	usageLimit   = 200
	maxUsageDays = 366
	isoMillis    = "2006-01-02T15:04:05.000Z07:00"
)

// UsageDay is one point of the daily series. Days without activity are zero-filled.
type UsageDay struct {
	Date           string  `json:"date"`
	InputCost      float64 `json:"inputCost"`
	OutputCost     float64 `json:"outputCost"`
	CacheReadCost  float64 `json:"cacheReadCost"`
	CacheWriteCost float64 `json:"cacheWriteCost"`
	TotalCost      float64 `json:"totalCost"`
	TotalTokens    float64 `json:"totalTokens"`
	Messages       float64 `json:"messages"`
}

type ModelUsage struct {
	Cost     float64 `json:"cost"`
	Tokens   float64 `json:"tokens"`
	Messages float64 `json:"messages"`
}

type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type UsageMetrics struct {
	CostPerToken         float64 `json:"costPerToken"`
	CostPerMessage       float64 `json:"costPerMessage"`
	TokensPerMessage     float64 `json:"tokensPerMessage"`
	AvgDailyCost         float64 `json:"avgDailyCost"`
	DaysRemainingInMonth int     `json:"daysRemainingInMonth"`
}

type MessageBreakdown struct {
	User        float64 `json:"user"`
	Assistant   float64 `json:"assistant"`
	ToolCalls   float64 `json:"toolCalls"`
	ToolResults float64 `json:"toolResults"`
	Errors      float64 `json:"errors"`
}

// UsageResponse is the body of /api/usage.
type UsageResponse struct {
	Days             []UsageDay            `json:"days"`
	TotalCost        float64               `json:"totalCost"`
	TotalTokens      float64               `json:"totalTokens"`
	TotalMessages    float64               `json:"totalMessages"`
	ByModel          map[string]ModelUsage `json:"byModel"`
	Period           Period                `json:"period"`
	Metrics          UsageMetrics          `json:"metrics"`
	MessageBreakdown MessageBreakdown      `json:"messageBreakdown"`
}

// gatewayUsage is the subset of the sessions.usage answer the dashboard reads. Daily
// entries come in two dialects: the short one (cost, tokens, messages) and the detailed
// one (totalCost, totalTokens, messageCount plus the per-kind costs).
type gatewayUsage struct {
	Totals struct {
		TotalTokens float64 `json:"totalTokens"`
		TotalCost   float64 `json:"totalCost"`
	} `json:"totals"`
	Aggregates struct {
		Messages struct {
			Total float64 `json:"total"`
			MessageBreakdown
		} `json:"messages"`
		ByModel []struct {
			Model  string `json:"model"`
			Totals struct {
				TotalCost   float64 `json:"totalCost"`
				TotalTokens float64 `json:"totalTokens"`
			} `json:"totals"`
			MessageCount float64 `json:"messageCount"`
		} `json:"byModel"`
		Daily []struct {
			Date           string  `json:"date"`
			Tokens         float64 `json:"tokens"`
			Cost           float64 `json:"cost"`
			Messages       float64 `json:"messages"`
			TotalTokens    float64 `json:"totalTokens"`
			TotalCost      float64 `json:"totalCost"`
			InputCost      float64 `json:"inputCost"`
			OutputCost     float64 `json:"outputCost"`
			CacheReadCost  float64 `json:"cacheReadCost"`
			CacheWriteCost float64 `json:"cacheWriteCost"`
			MessageCount   float64 `json:"messageCount"`
		} `json:"daily"`
	} `json:"aggregates"`
}

// usage answers with the normalized sessions.usage report. On any failure it still
// answers 200, with an all-zero report covering the requested days.
func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	days := h.usageDays
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = min(n, maxUsageDays)
		}
	}

	end := h.clock.Now().UTC()
	start := end.AddDate(0, 0, -days)

	payload, err := h.invoker.Invoke(r.Context(), "sessions.usage", map[string]any{
		"startDate": start.Format(time.DateOnly),
		"endDate":   end.Format(time.DateOnly),
		"limit":     usageLimit,
	}, h.usageTimeout)
	if err != nil {
		h.logger.Warn("fetching gateway usage", "days", days, "error", err)
		writeJSON(w, http.StatusOK, emptyUsage(days, end))
		return
	}

	report, err := normalizeUsage(payload, start, end)
	if err != nil {
		h.logger.Warn("decoding gateway usage", "error", err)
		writeJSON(w, http.StatusOK, emptyUsage(days, end))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func normalizeUsage(payload json.RawMessage, start, end time.Time) (*UsageResponse, error) {
	var data gatewayUsage
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}

	byDate := make(map[string]UsageDay, len(data.Aggregates.Daily))
	for _, d := range data.Aggregates.Daily {
		if d.Date == "" {
			continue
		}
		byDate[d.Date] = UsageDay{
			Date:           d.Date,
			InputCost:      d.InputCost,
			OutputCost:     d.OutputCost,
			CacheReadCost:  d.CacheReadCost,
			CacheWriteCost: d.CacheWriteCost,
			TotalCost:      firstNonZero(d.TotalCost, d.Cost),
			TotalTokens:    firstNonZero(d.TotalTokens, d.Tokens),
			Messages:       firstNonZero(d.MessageCount, d.Messages),
		}
	}

	var series []UsageDay
	last := end.Format(time.DateOnly)
	for cursor := truncateDay(start); ; cursor = cursor.AddDate(0, 0, 1) {
		date := cursor.Format(time.DateOnly)
		day, ok := byDate[date]
		if !ok {
			day = UsageDay{Date: date}
		}
		series = append(series, day)
		if date >= last {
			break
		}
	}

	byModel := make(map[string]ModelUsage, len(data.Aggregates.ByModel))
	for _, m := range data.Aggregates.ByModel {
		key := m.Model
		if key == "" {
			key = "unknown"
		}
		byModel[key] = ModelUsage{
			Cost:     m.Totals.TotalCost,
			Tokens:   m.Totals.TotalTokens,
			Messages: m.MessageCount,
		}
	}

	totalCost := data.Totals.TotalCost
	totalTokens := data.Totals.TotalTokens
	totalMessages := data.Aggregates.Messages.Total

	return &UsageResponse{
		Days:          series,
		TotalCost:     totalCost,
		TotalTokens:   totalTokens,
		TotalMessages: totalMessages,
		ByModel:       byModel,
		Period:        Period{Start: start.Format(isoMillis), End: end.Format(isoMillis)},
		Metrics: UsageMetrics{
			CostPerToken:         ratio(totalCost, totalTokens),
			CostPerMessage:       ratio(totalCost, totalMessages),
			TokensPerMessage:     ratio(totalTokens, totalMessages),
			AvgDailyCost:         ratio(totalCost, float64(len(series))),
			DaysRemainingInMonth: daysRemainingInMonth(end),
		},
		MessageBreakdown: data.Aggregates.Messages.MessageBreakdown,
	}, nil
}

// emptyUsage is the report served when the gateway could not be asked: days zero
// entries ending today.
func emptyUsage(days int, now time.Time) *UsageResponse {
	series := make([]UsageDay, 0, days)
	for i := days - 1; i >= 0; i-- {
		series = append(series, UsageDay{Date: now.AddDate(0, 0, -i).Format(time.DateOnly)})
	}
	return &UsageResponse{
		Days:    series,
		ByModel: map[string]ModelUsage{},
		Period:  Period{Start: series[0].Date, End: series[len(series)-1].Date},
		Metrics: UsageMetrics{DaysRemainingInMonth: daysRemainingInMonth(now)},
	}
}

func daysRemainingInMonth(now time.Time) int {
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	return lastDay - now.Day()
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func firstNonZero(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}
