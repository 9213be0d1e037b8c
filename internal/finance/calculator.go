// Package finance is the client side of the external finance calculator:
// time-value-of-money metrics (NPV, IRR, payback, decline projection) are
// delegated whole rather than reimplemented.
package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealroom-cli/internal/config"
	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// Calculator evaluates a scenario against a base case of stored facts.
type Calculator interface {
	Evaluate(ctx context.Context, baseCase []model.Fact, overrides map[string]float64, metrics []string) (*Result, error)
}

// CashFlow is one period of the calculator's projected series.
type CashFlow struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// Result is the calculator's verdict. Metric pointers are nil when the
// metric was not requested or not computable from the inputs.
type Result struct {
	NPV       *float64   `json:"npv,omitempty"`
	IRR       *float64   `json:"irr,omitempty"`
	Payback   *float64   `json:"payback_years,omitempty"`
	CashFlows []CashFlow `json:"cash_flows,omitempty"`
	Engine    string     `json:"engine"`
	Cost      float64    `json:"cost_usd"`
}

// CalcError is the calculator's own error taxonomy (unit_mismatch,
// missing_input, implausible_input, sign_error, division_by_zero), surfaced
// to callers unchanged.
type CalcError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *CalcError) Error() string {
	return "calculator: " + e.Kind + ": " + e.Message
}

// AsCalcError unwraps a calculator taxonomy error if err carries one.
func AsCalcError(err error) (*CalcError, bool) {
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type evaluateRequest struct {
	BaseCase  []model.Fact       `json:"base_case"`
	Overrides map[string]float64 `json:"overrides,omitempty"`
	Metrics   []string           `json:"metrics"`
}

type errorEnvelope struct {
	Error CalcError `json:"error"`
}

// HTTPCalculator talks to the calculator service over JSON/HTTP with an
// explicit per-call timeout and a client-side rate limit.
type HTTPCalculator struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPCalculator builds a calculator client from config.
func NewHTTPCalculator(cfg config.CalculatorConfig) *HTTPCalculator {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPCalculator{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

func (c *HTTPCalculator) Evaluate(ctx context.Context, baseCase []model.Fact, overrides map[string]float64, metrics []string) (*Result, error) {
	if c.baseURL == "" {
		return nil, faults.New(faults.Validation, "calculator: no base_url configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, faults.Wrap(faults.Timeout, err, "calculator: rate limit wait")
	}

	body, err := json.Marshal(evaluateRequest{BaseCase: baseCase, Overrides: overrides, Metrics: metrics})
	if err != nil {
		return nil, eris.Wrap(err, "calculator: encode request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "calculator: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, faults.Wrap(faults.Timeout, err, fmt.Sprintf("calculator: no answer within %s", c.timeout))
		}
		return nil, eris.Wrap(err, "calculator: request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "calculator: read response")
	}

	if resp.StatusCode != http.StatusOK {
		var envelope errorEnvelope
		if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Kind != "" {
			return nil, &envelope.Error
		}
		return nil, eris.Errorf("calculator: unexpected status %d: %s", resp.StatusCode, payload)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, eris.Wrap(err, "calculator: decode response")
	}
	if result.Engine == "" {
		result.Engine = "external"
	}
	zap.L().Debug("calculator evaluate",
		zap.Strings("metrics", metrics),
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("cost_usd", result.Cost),
	)
	return &result, nil
}
