package ingest

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
)

// CSV field positions, shared by both variants:
// 0 open time, 1 open, 2 high, 3 low, 4 close, 5 volume, 6 close time,
// 7 quote asset volume, 8 number of trades, 9 taker buy base volume,
// 10 taker buy quote volume, [11 ignore — futures only, discarded].

// ParseRows converts a raw CSV batch into canonical candles using the
// layout resolved by DetectLayout. The futures header row is skipped and
// the trailing "ignore" field discarded. Rows that fail to parse or
// violate the OHLC bounds are skipped and counted rather than aborting
// the batch; the returned skip count lets the caller surface a degraded
// outcome. Candles are tagged Source bulk-cdn.
func ParseRows(rows [][]string, layout Layout, symbol, timeframe string, instrument domain.InstrumentType) ([]domain.Candle, int) {
	wantFields := spotFieldCount
	if layout.Variant == VariantFutures {
		wantFields = futuresFieldCount
	}

	candles := make([]domain.Candle, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if i == 0 && layout.Variant == VariantFutures && isHeaderToken(row[0]) {
			continue
		}
		if len(row) < wantFields {
			skipped++
			continue
		}
		c, err := parseRow(row, layout.Precision, symbol, timeframe, instrument)
		if err != nil {
			skipped++
			continue
		}
		if err := c.Validate(); err != nil {
			skipped++
			continue
		}
		candles = append(candles, c)
	}
	return candles, skipped
}

func parseRow(row []string, precision Precision, symbol, timeframe string, instrument domain.InstrumentType) (domain.Candle, error) {
	openRaw, err := parseEpoch(row[0])
	if err != nil {
		return domain.Candle{}, err
	}
	openUs, err := NormalizeTimestamp(openRaw, precision)
	if err != nil {
		return domain.Candle{}, err
	}
	closeRaw, err := parseEpoch(row[6])
	if err != nil {
		return domain.Candle{}, err
	}
	closeUs, err := NormalizeTimestamp(closeRaw, precision)
	if err != nil {
		return domain.Candle{}, err
	}

	open, err := parseDecimal(row[1])
	if err != nil {
		return domain.Candle{}, err
	}
	high, err := parseDecimal(row[2])
	if err != nil {
		return domain.Candle{}, err
	}
	low, err := parseDecimal(row[3])
	if err != nil {
		return domain.Candle{}, err
	}
	closep, err := parseDecimal(row[4])
	if err != nil {
		return domain.Candle{}, err
	}
	volume, err := parseDecimal(row[5])
	if err != nil {
		return domain.Candle{}, err
	}
	quoteVolume, err := parseDecimal(row[7])
	if err != nil {
		return domain.Candle{}, err
	}
	trades, err := strconv.ParseUint(strings.TrimSpace(row[8]), 10, 64)
	if err != nil {
		return domain.Candle{}, err
	}
	takerBase, err := parseDecimal(row[9])
	if err != nil {
		return domain.Candle{}, err
	}
	takerQuote, err := parseDecimal(row[10])
	if err != nil {
		return domain.Candle{}, err
	}

	return domain.Candle{
		OpenTime:            TimeFromMicros(openUs),
		Open:                open,
		High:                high,
		Low:                 low,
		Close:               closep,
		Volume:              volume,
		CloseTime:           TimeFromMicros(closeUs),
		QuoteVolume:         quoteVolume,
		TradeCount:          trades,
		TakerBuyBaseVolume:  takerBase,
		TakerBuyQuoteVolume: takerQuote,
		Symbol:              symbol,
		Timeframe:           timeframe,
		Instrument:          instrument,
		Source:              domain.SourceBulkCDN,
	}, nil
}

func parseEpoch(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}
