// Package binanceclient implements ports.RestSource using the go-binance
// library, covering both spot and USD-M perpetual futures klines. This is
// the backfill collaborator: rate-limited, idempotent, side-effect-free.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ingest"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

// Client implements the ports.RestSource interface using the go-binance library.
type Client struct {
	spotClient    *binance.Client
	futuresClient *futures.Client
	limiter       *rate.Limiter
	logger        ports.Logger
}

// Config holds configuration specific to the Binance REST adapter. API
// keys are optional: the klines endpoints are public.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger
	// RequestsPerSecond and Burst gate every outgoing call through one
	// shared limiter, keeping concurrent chunk fetches inside the
	// exchange's request weight budget.
	RequestsPerSecond float64
	Burst             int
}

// New creates a new Binance REST adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client: %w", ports.ErrConfigurationError)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Client{
		spotClient:    binance.NewClient(cfg.APIKey, cfg.SecretKey),
		futuresClient: futures.NewClient(cfg.APIKey, cfg.SecretKey),
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		logger:        cfg.Logger,
	}, nil
}

// Klines implements ports.RestSource. The half-open window [start, end)
// filters on candle open time; the exchange treats both bounds as
// inclusive, so end is pulled back by one millisecond. Timestamps come
// back in milliseconds and are normalized to canonical microseconds.
func (c *Client) Klines(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, start, end time.Time, limit int) ([]domain.Candle, error) {
	op := "Klines"
	if !end.After(start) {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limiter: %w: %v", op, ports.ErrContextCanceled, err)
	}

	startMs := start.UnixMilli()
	endMs := end.UnixMilli() - 1

	if instrument == domain.InstrumentFuturesPerpetual {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(startMs).
			EndTime(endMs).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		candles := make([]domain.Candle, 0, len(klines))
		for _, k := range klines {
			candle, err := translateKline(k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close,
				k.Volume, k.QuoteAssetVolume, k.TakerBuyBaseAssetVolume, k.TakerBuyQuoteAssetVolume,
				k.TradeNum, symbol, timeframe, instrument)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("translate futures kline: %w", err), op)
			}
			candles = append(candles, candle)
		}
		return candles, nil
	}

	klines, err := c.spotClient.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		StartTime(startMs).
		EndTime(endMs).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close,
			k.Volume, k.QuoteAssetVolume, k.TakerBuyBaseAssetVolume, k.TakerBuyQuoteAssetVolume,
			k.TradeNum, symbol, timeframe, instrument)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("translate spot kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1127:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrChunkFetch
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

// translateKline builds a canonical candle from the wire fields shared by
// the spot and futures kline shapes.
func translateKline(openMs, closeMs int64, open, high, low, closep, volume, quoteVolume, takerBase, takerQuote string,
	tradeNum int64, symbol, timeframe string, instrument domain.InstrumentType) (domain.Candle, error) {

	openUs, err := ingest.NormalizeTimestamp(openMs, ingest.PrecisionMilli)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("open time %d: %w", openMs, err)
	}
	closeUs, err := ingest.NormalizeTimestamp(closeMs, ingest.PrecisionMilli)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("close time %d: %w", closeMs, err)
	}

	var fields [8]decimal.Decimal
	for i, raw := range [8]string{open, high, low, closep, volume, quoteVolume, takerBase, takerQuote} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parsing decimal field %q: %w", raw, err)
		}
		fields[i] = d
	}
	if tradeNum < 0 {
		return domain.Candle{}, fmt.Errorf("negative trade count %d", tradeNum)
	}

	return domain.Candle{
		OpenTime:            ingest.TimeFromMicros(openUs),
		Open:                fields[0],
		High:                fields[1],
		Low:                 fields[2],
		Close:               fields[3],
		Volume:              fields[4],
		CloseTime:           ingest.TimeFromMicros(closeUs),
		QuoteVolume:         fields[5],
		TradeCount:          uint64(tradeNum),
		TakerBuyBaseVolume:  fields[6],
		TakerBuyQuoteVolume: fields[7],
		Symbol:              symbol,
		Timeframe:           timeframe,
		Instrument:          instrument,
		Source:              domain.SourceRestAPI,
	}, nil
}
