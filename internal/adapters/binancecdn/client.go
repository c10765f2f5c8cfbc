// Package binancecdn implements ports.BulkSource against the Binance bulk
// data distribution (data.binance.vision): pre-zipped monthly and daily
// kline CSVs, one CSV per zip.
package binancecdn

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ingest"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ports"
)

const defaultBaseURL = "https://data.binance.vision"

// Config holds configuration for the CDN client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  ports.Logger
	// VerifyChecksums downloads the .CHECKSUM sidecar and verifies the
	// zip's SHA-256 before parsing. A missing sidecar is not an error.
	VerifyChecksums bool
}

// Client downloads and parses bulk kline files.
type Client struct {
	http            *resty.Client
	logger          ports.Logger
	verifyChecksums bool
}

// New creates a CDN client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for CDN client: %w", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("User-Agent", "gapless-crypto-clickhouse/1.0")

	return &Client{
		http:            httpClient,
		logger:          cfg.Logger,
		verifyChecksums: cfg.VerifyChecksums,
	}, nil
}

// marketPath returns the CDN path segment for the instrument's market.
// Spot files live under data/spot, perpetual futures under the USD-M
// futures tree.
func marketPath(instrument domain.InstrumentType) string {
	if instrument == domain.InstrumentFuturesPerpetual {
		return "data/futures/um"
	}
	return "data/spot"
}

// MonthlyPath is the CDN path of a monthly bulk file:
// {market}/monthly/klines/{SYM}/{tf}/{SYM}-{tf}-{YYYY}-{MM}.zip
func MonthlyPath(symbol, timeframe string, instrument domain.InstrumentType, year int, month time.Month) string {
	return fmt.Sprintf("%s/monthly/klines/%s/%s/%s-%s-%04d-%02d.zip",
		marketPath(instrument), symbol, timeframe, symbol, timeframe, year, int(month))
}

// DailyPath is the CDN path of a daily bulk file:
// {market}/daily/klines/{SYM}/{tf}/{SYM}-{tf}-{YYYY}-{MM}-{DD}.zip
func DailyPath(symbol, timeframe string, instrument domain.InstrumentType, day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("%s/daily/klines/%s/%s/%s-%s-%04d-%02d-%02d.zip",
		marketPath(instrument), symbol, timeframe, symbol, timeframe, day.Year(), int(day.Month()), day.Day())
}

// MonthlyCandles implements ports.BulkSource.
func (c *Client) MonthlyCandles(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, year int, month time.Month) ([]domain.Candle, error) {
	return c.fetchAndParse(ctx, MonthlyPath(symbol, timeframe, instrument, year, month), symbol, timeframe, instrument)
}

// DailyCandles implements ports.BulkSource.
func (c *Client) DailyCandles(ctx context.Context, symbol, timeframe string, instrument domain.InstrumentType, day time.Time) ([]domain.Candle, error) {
	return c.fetchAndParse(ctx, DailyPath(symbol, timeframe, instrument, day), symbol, timeframe, instrument)
}

func (c *Client) fetchAndParse(ctx context.Context, path, symbol, timeframe string, instrument domain.InstrumentType) ([]domain.Candle, error) {
	payload, err := c.download(ctx, path)
	if err != nil {
		return nil, err
	}

	if c.verifyChecksums {
		if err := c.verifyChecksum(ctx, path, payload); err != nil {
			return nil, err
		}
	}

	rows, err := extractRows(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	layout, err := ingest.DetectLayout(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	candles, skipped := ingest.ParseRows(rows, layout, symbol, timeframe, instrument)
	if skipped > 0 {
		c.logger.Warn(ctx, "skipped malformed bulk rows", map[string]interface{}{
			"path":    path,
			"skipped": skipped,
			"parsed":  len(candles),
			"variant": layout.Variant.String(),
		})
	}
	return candles, nil
}

func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/" + path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("GET %s: %w", path, ports.ErrContextCanceled)
		}
		return nil, fmt.Errorf("GET %s: %w: %v", path, ports.ErrConnectionFailed, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return resp.Body(), nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", path, ports.ErrBulkFileNotFound)
	default:
		return nil, fmt.Errorf("GET %s: status %d: %w", path, resp.StatusCode(), ports.ErrConnectionFailed)
	}
}

// verifyChecksum fetches the .CHECKSUM sidecar (format: "digest filename")
// and compares the zip's SHA-256 against it. A missing sidecar skips
// verification.
func (c *Client) verifyChecksum(ctx context.Context, path string, payload []byte) error {
	sidecar, err := c.download(ctx, path+".CHECKSUM")
	if err != nil {
		c.logger.Debug(ctx, "checksum sidecar unavailable, skipping verification", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return nil
	}
	parts := strings.Fields(string(sidecar))
	if len(parts) < 1 {
		return nil
	}
	sum := sha256.Sum256(payload)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, parts[0]) {
		return fmt.Errorf("%s: expected %s, got %s: %w", path, parts[0], actual, ports.ErrChecksumMismatch)
	}
	return nil
}

// extractRows opens the first CSV entry of the zip and reads all records.
func extractRows(payload []byte) ([][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("zip open: %w", err)
	}
	var csvFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			csvFile = f
			break
		}
	}
	if csvFile == nil {
		return nil, fmt.Errorf("no csv in zip")
	}
	rc, err := csvFile.Open()
	if err != nil {
		return nil, fmt.Errorf("zip entry open: %w", err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
