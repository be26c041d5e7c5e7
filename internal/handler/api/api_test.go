package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/registry"
	"FinPolicy/internal/scheduler"
	"FinPolicy/pkg/errs"
	xhttp "FinPolicy/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	pred    *models.Prediction
	prop    *models.TradeProposal
	err     error
	decided models.DecideRequest
}

func (f *fakePredictor) Predict(_ context.Context, s models.TradingState) (*models.Prediction, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.pred
	p.Symbol = s.Symbol
	return &p, nil
}

func (f *fakePredictor) Decide(_ context.Context, req models.DecideRequest) (*models.TradeProposal, error) {
	f.decided = req
	return f.prop, f.err
}

type fakeRisk struct {
	res *models.RiskManagementResult
	err error
}

func (f fakeRisk) Evaluate(models.RiskRequest) (*models.RiskManagementResult, error) {
	return f.res, f.err
}

type fakeMarket struct {
	md  models.MarketData
	err error
}

func (f fakeMarket) MarketData(context.Context, string) (models.MarketData, error) {
	return f.md, f.err
}

func (f fakeMarket) FillDecide(_ context.Context, req *models.DecideRequest) error {
	if f.err != nil {
		return f.err
	}
	if len(req.Market.ATRData) == 0 {
		req.Market.ATRData = f.md.ATRData
	}
	return nil
}

func serve(t *testing.T, h xhttp.Handler, method, path, body string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	t.Helper()
	s := xhttp.NewServer(h, nil)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var resp xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func decode(t *testing.T, data interface{}, out interface{}) {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, out))
}

const stateBody = `{"state":{"symbol":"EURUSD","features":[0.1,0.2,0.3]}}`

func TestPredict(t *testing.T) {
	svc := &fakePredictor{pred: &models.Prediction{ID: "p1", Action: models.RLAction{Direction: models.DirectionBuy}}}
	h := NewDecisionHandler(nil, svc, fakeRisk{}, nil)

	rec, resp := serve(t, h, http.MethodPost, "/api/v1/predict", stateBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Prediction
	decode(t, resp.Data, &p)
	assert.Equal(t, "EURUSD", p.Symbol)
	assert.Equal(t, models.DirectionBuy, p.Action.Direction)
}

func TestPredictValidation(t *testing.T) {
	h := NewDecisionHandler(nil, &fakePredictor{}, fakeRisk{}, nil)

	rec, resp := serve(t, h, http.MethodPost, "/api/v1/predict", `{"state":{"features":[]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var verrs []xhttp.ValidationError
	decode(t, resp.Data, &verrs)
	require.NotEmpty(t, verrs)
}

func TestPredictMapsErrorKinds(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.KindValidation: http.StatusBadRequest,
		errs.KindIntegrity:  http.StatusServiceUnavailable,
		errs.KindTimeout:    http.StatusGatewayTimeout,
	}
	for k, want := range cases {
		svc := &fakePredictor{err: errs.New(k, "predict", "boom")}
		h := NewDecisionHandler(nil, svc, fakeRisk{}, nil)
		rec, _ := serve(t, h, http.MethodPost, "/api/v1/predict", stateBody)
		assert.Equal(t, want, rec.Code, k)
	}
}

func TestDecideFillsMarketData(t *testing.T) {
	svc := &fakePredictor{prop: &models.TradeProposal{ID: "t1", Approved: true}}
	mkt := fakeMarket{md: models.MarketData{ATRData: []models.ATRData{{Timeframe: "H1", Value: 0.0012}}}}
	h := NewDecisionHandler(nil, svc, fakeRisk{}, mkt)

	body := `{"state":{"symbol":"EURUSD","features":[0.1]},"entry":1.1,
		"account":{"balance":10000,"equity":10000},"specs":{"symbol":"EURUSD"}}`
	rec, resp := serve(t, h, http.MethodPost, "/api/v1/decide", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var prop models.TradeProposal
	decode(t, resp.Data, &prop)
	assert.True(t, prop.Approved)
	assert.InDelta(t, 0.0012, svc.decided.Market.ATR("H1"), 1e-12)
	assert.InDelta(t, 0.01, svc.decided.Specs.MinLot, 1e-12)
}

func TestDecideWithoutMarketData(t *testing.T) {
	mkt := fakeMarket{err: errs.New(errs.KindInsufficientData, "market data", "no candles")}
	h := NewDecisionHandler(nil, &fakePredictor{}, fakeRisk{}, mkt)

	body := `{"state":{"symbol":"EURUSD","features":[0.1]},"entry":1.1,
		"account":{"balance":10000},"specs":{"symbol":"EURUSD"}}`
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/decide", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEvaluateRisk(t *testing.T) {
	res := &models.RiskManagementResult{Symbol: "EURUSD", Direction: models.DirectionSell}
	h := NewDecisionHandler(nil, &fakePredictor{}, fakeRisk{res: res}, nil)

	body := `{"symbol":"EURUSD","direction":"SELL","entry":1.1,
		"account":{"balance":5000},"specs":{"symbol":"EURUSD"}}`
	rec, resp := serve(t, h, http.MethodPost, "/api/v1/risk/evaluate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.RiskManagementResult
	decode(t, resp.Data, &got)
	assert.Equal(t, models.DirectionSell, got.Direction)

	rec, _ = serve(t, h, http.MethodPost, "/api/v1/risk/evaluate", `{"symbol":"EURUSD","direction":"HOLD","entry":1.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketRouteOnlyWithReader(t *testing.T) {
	h := NewDecisionHandler(nil, &fakePredictor{}, fakeRisk{}, nil)
	rec, _ := serve(t, h, http.MethodGet, "/api/v1/market/EURUSD", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	mkt := fakeMarket{md: models.MarketData{ATRData: []models.ATRData{{Timeframe: "H1", Value: 0.001}}}}
	h = NewDecisionHandler(nil, &fakePredictor{}, fakeRisk{}, mkt)
	rec, _ = serve(t, h, http.MethodGet, "/api/v1/market/EURUSD", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=15", rec.Header().Get("Cache-Control"))
}

type fakeCatalog struct {
	versions []string
	active   *models.ActiveModel
	report   *registry.IntegrityReport
	err      error
}

func (f fakeCatalog) ListVersions(context.Context, string) ([]string, error) {
	return f.versions, f.err
}

func (f fakeCatalog) Active(context.Context, string) (*models.ActiveModel, error) {
	return f.active, f.err
}

func (f fakeCatalog) VerifyModelIntegrity(_ context.Context, name, version string) (*registry.IntegrityReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	rep := *f.report
	rep.Ref = models.ModelRef{Name: name, Version: version}
	return &rep, nil
}

type fakeHistory struct{ limit int }

func (f *fakeHistory) History(_ context.Context, name string, limit int) ([]models.ActiveModel, error) {
	f.limit = limit
	return []models.ActiveModel{{Name: name, Version: "v2"}, {Name: name, Version: "v1"}}, nil
}

func TestModelVersions(t *testing.T) {
	h := NewModelsHandler(nil, fakeCatalog{versions: []string{"v2", "v1"}}, nil)
	rec, resp := serve(t, h, http.MethodGet, "/api/v1/models/ppo/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []string `json:"rows"`
		Total int64    `json:"total"`
	}
	decode(t, resp.Data, &list)
	assert.Equal(t, []string{"v2", "v1"}, list.Rows)
	assert.EqualValues(t, 2, list.Total)
}

func TestModelActive(t *testing.T) {
	h := NewModelsHandler(nil, fakeCatalog{}, nil)
	rec, _ := serve(t, h, http.MethodGet, "/api/v1/models/ppo/active", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h = NewModelsHandler(nil, fakeCatalog{active: &models.ActiveModel{Name: "ppo", Version: "v1"}}, nil)
	rec, resp := serve(t, h, http.MethodGet, "/api/v1/models/ppo/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var am models.ActiveModel
	decode(t, resp.Data, &am)
	assert.Equal(t, "v1", am.Version)
}

func TestModelIntegrity(t *testing.T) {
	h := NewModelsHandler(nil, fakeCatalog{report: &registry.IntegrityReport{Valid: true, Score: 1}}, nil)
	rec, resp := serve(t, h, http.MethodGet, "/api/v1/models/ppo/versions/v1/integrity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep registry.IntegrityReport
	decode(t, resp.Data, &rep)
	assert.Equal(t, "v1", rep.Ref.Version)

	h = NewModelsHandler(nil, fakeCatalog{report: &registry.IntegrityReport{Errors: []string{"checksum mismatch"}}}, nil)
	rec, _ = serve(t, h, http.MethodGet, "/api/v1/models/ppo/versions/v1/integrity", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	h = NewModelsHandler(nil, fakeCatalog{err: errs.Wrap(errs.KindResource, "verify integrity", errors.New("bucket down"))}, nil)
	rec, _ = serve(t, h, http.MethodGet, "/api/v1/models/ppo/versions/v1/integrity", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "bucket down")
}

func TestModelHistory(t *testing.T) {
	hist := &fakeHistory{}
	h := NewModelsHandler(nil, fakeCatalog{}, hist)
	rec, _ := serve(t, h, http.MethodGet, "/api/v1/models/ppo/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.limit)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/models/ppo/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	err     error
	calls   int
	done    chan struct{}
}

func (f *fakeRunner) RunCycle(context.Context) (*models.CycleSummary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.done != nil {
		defer close(f.done)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.CycleSummary{ID: "c1", Outcome: models.OutcomePromoted}, nil
}

func (f *fakeRunner) Status() scheduler.Status {
	return scheduler.Status{State: models.CycleIdle, Running: f.running}
}

func TestSchedulerRunWait(t *testing.T) {
	h := NewSchedulerHandler(nil, &fakeRunner{}, time.Minute)
	rec, resp := serve(t, h, http.MethodPost, "/api/v1/scheduler/run?wait=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum models.CycleSummary
	decode(t, resp.Data, &sum)
	assert.Equal(t, models.OutcomePromoted, sum.Outcome)

	h = NewSchedulerHandler(nil, &fakeRunner{err: scheduler.ErrCycleInFlight}, time.Minute)
	rec, _ = serve(t, h, http.MethodPost, "/api/v1/scheduler/run?wait=true", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = serve(t, h, http.MethodPost, "/api/v1/scheduler/run?wait=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerRunBackground(t *testing.T) {
	r := &fakeRunner{done: make(chan struct{})}
	h := NewSchedulerHandler(nil, r, time.Minute)
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/scheduler/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background cycle did not run")
	}

	busy := &fakeRunner{running: true}
	h = NewSchedulerHandler(nil, busy, time.Minute)
	rec, _ = serve(t, h, http.MethodPost, "/api/v1/scheduler/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, busy.calls)
}

func TestSchedulerStatus(t *testing.T) {
	h := NewSchedulerHandler(nil, &fakeRunner{}, time.Minute)
	rec, resp := serve(t, h, http.MethodGet, "/api/v1/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st scheduler.Status
	decode(t, resp.Data, &st)
	assert.Equal(t, models.CycleIdle, st.State)
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	h := NewReadinessHandler(map[string]Check{"clickhouse": ok, "redis": ok}, time.Second)
	rec, resp := serve(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	decode(t, resp.Data, &got)
	assert.Equal(t, map[string]string{"clickhouse": "ok", "redis": "ok"}, got)

	h = NewReadinessHandler(map[string]Check{"clickhouse": ok, "postgres": down}, time.Second)
	rec, resp = serve(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, resp.Data, &got)
	assert.Equal(t, "connection refused", got["postgres"])
}
