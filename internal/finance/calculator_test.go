package finance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealroom-cli/internal/config"
	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

func newTestCalculator(t *testing.T, handler http.HandlerFunc, timeoutSecs int) *HTTPCalculator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPCalculator(config.CalculatorConfig{
		BaseURL:     srv.URL,
		TimeoutSecs: timeoutSecs,
		RatePerSec:  100,
	})
}

func TestHTTPCalculator_Evaluate(t *testing.T) {
	calc := newTestCalculator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate", r.URL.Path)

		var req evaluateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"npv", "irr"}, req.Metrics)
		assert.InDelta(t, 75.0, req.Overrides["oil_commodity_price"], 1e-9)

		npv, irr := 412.7, 0.23
		json.NewEncoder(w).Encode(Result{NPV: &npv, IRR: &irr, Engine: "dcf-v2", Cost: 0.04})
	}, 5)

	baseCase := []model.Fact{{SemanticKey: "oil_production", Value: 376, Unit: "kbbl"}}
	res, err := calc.Evaluate(context.Background(), baseCase,
		map[string]float64{"oil_commodity_price": 75.0}, []string{"npv", "irr"})
	require.NoError(t, err)
	require.NotNil(t, res.NPV)
	assert.InDelta(t, 412.7, *res.NPV, 1e-9)
	assert.Equal(t, "dcf-v2", res.Engine)
}

func TestHTTPCalculator_TaxonomyErrorPassthrough(t *testing.T) {
	calc := newTestCalculator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(errorEnvelope{Error: CalcError{
			Kind:    "sign_error",
			Message: "all cash flows are negative, IRR undefined",
		}})
	}, 5)

	_, err := calc.Evaluate(context.Background(), nil, nil, []string{"irr"})
	require.Error(t, err)

	ce, ok := AsCalcError(err)
	require.True(t, ok)
	assert.Equal(t, "sign_error", ce.Kind)
	assert.Contains(t, ce.Message, "IRR undefined")
}

func TestHTTPCalculator_Timeout(t *testing.T) {
	calc := newTestCalculator(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, 5)
	calc.timeout = 50 * time.Millisecond

	_, err := calc.Evaluate(context.Background(), nil, nil, []string{"npv"})
	assert.True(t, faults.Is(err, faults.Timeout))
}

func TestHTTPCalculator_MissingBaseURL(t *testing.T) {
	calc := NewHTTPCalculator(config.CalculatorConfig{})
	_, err := calc.Evaluate(context.Background(), nil, nil, []string{"npv"})
	assert.True(t, faults.Is(err, faults.Validation))
}

func TestHTTPCalculator_MalformedErrorBody(t *testing.T) {
	calc := newTestCalculator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}, 5)

	_, err := calc.Evaluate(context.Background(), nil, nil, []string{"npv"})
	require.Error(t, err)
	_, ok := AsCalcError(err)
	assert.False(t, ok)
}
