package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/services/features"
	"FinPolicy/pkg/errs"
)

// CandleSource reads recent bars for one symbol and timeframe.
type CandleSource interface {
	RecentCandles(ctx context.Context, symbol, tf string, to time.Time, limit int) ([]models.Candle, error)
}

// MarketConfig controls which bars feed the market read.
type MarketConfig struct {
	Timeframes   []string `yaml:"timeframes" default:"[\"M15\",\"H1\",\"H4\"]"`
	Primary      string   `yaml:"primary" default:"H1"`
	Bars         int      `yaml:"bars" default:"200" validate:"gte=20"`
	RegimeWindow int      `yaml:"regime_window" default:"40" validate:"gte=8"`
}

// MarketUseCase builds risk engine market data from stored candles.
type MarketUseCase struct {
	candles CandleSource
	cfg     MarketConfig
	now     func() time.Time
}

func NewMarketUseCase(candles CandleSource, cfg MarketConfig) *MarketUseCase {
	return &MarketUseCase{candles: candles, cfg: cfg, now: time.Now}
}

// MarketData reads every configured timeframe and assembles ATR, regime and
// structure levels.
func (uc *MarketUseCase) MarketData(ctx context.Context, symbol string) (models.MarketData, error) {
	const op = "market data"
	if symbol == "" {
		return models.MarketData{}, errs.New(errs.KindValidation, op, "symbol required")
	}
	to := uc.now()
	byTF := make(map[string][]models.Candle, len(uc.cfg.Timeframes))
	for _, tf := range uc.cfg.Timeframes {
		candles, err := uc.candles.RecentCandles(ctx, symbol, tf, to, uc.cfg.Bars)
		if err != nil {
			return models.MarketData{}, errs.Wrap(errs.KindResource, op, fmt.Errorf("%s %s: %w", symbol, tf, err))
		}
		byTF[tf] = candles
	}

	md := features.BuildMarketData(byTF, uc.cfg.Primary, uc.cfg.RegimeWindow)
	if len(md.ATRData) == 0 {
		return md, errs.Newf(errs.KindInsufficientData, op, "%s: not enough candles for ATR", symbol)
	}
	return md, nil
}

// FillDecide supplies market data to a decide request that carries none.
func (uc *MarketUseCase) FillDecide(ctx context.Context, req *models.DecideRequest) error {
	if len(req.Market.ATRData) > 0 {
		return nil
	}
	md, err := uc.MarketData(ctx, req.State.Symbol)
	if err != nil {
		return err
	}
	md.NewsImpact = req.Market.NewsImpact
	req.Market = md
	return nil
}
