package usecase

import (
	"SignalScan/internal/domain/models"
	"SignalScan/internal/service/marketapi"
	"SignalScan/internal/services/signals"
	"SignalScan/pkg/config"
)

// ScanConfigs turns the loaded configuration into one ScanConfig per kind.
func ScanConfigs(cfg *config.Config) map[models.Kind]ScanConfig {
	fetch := marketapi.FetchParams{
		Endpoints:  append([]string(nil), cfg.API.Endpoints...),
		Timeout:    cfg.API.Timeout,
		MaxRetries: cfg.API.MaxRetries,
		Backoff:    cfg.API.Backoff,
	}

	ema := cfg.Scanners.EMACross
	macd := cfg.Scanners.MACDDivergence

	return map[models.Kind]ScanConfig{
		models.KindEMACross: {
			Kind: models.KindEMACross,
			Classifier: signals.NewEMACross(signals.EMACrossParams{
				Fast:           ema.Fast,
				Slow:           ema.Slow,
				ImminentGapPct: ema.ImminentGapPct,
				PrepGapPct:     ema.PrepGapPct,
				ImminentWindow: ema.ImminentWindow,
				PrepWindow:     ema.PrepWindow,
				MinBars:        ema.MinBars,
			}),
			Universe:    universeParams(cfg, ema.ScannerConfig),
			Series:      seriesParams(ema.ScannerConfig),
			Fetch:       fetch,
			Concurrency: ema.Concurrency,
			Pacing:      ema.Pacing,
		},
		models.KindMACDDivergence: {
			Kind: models.KindMACDDivergence,
			Classifier: signals.NewDivergence(signals.DivergenceParams{
				Fast:       macd.Fast,
				Slow:       macd.Slow,
				Signal:     macd.Signal,
				Lookback:   macd.Lookback,
				RecentBars: macd.RecentBars,
				MinBars:    macd.MinBars,
			}),
			Universe:    universeParams(cfg, macd.ScannerConfig),
			Series:      seriesParams(macd.ScannerConfig),
			Fetch:       fetch,
			Concurrency: macd.Concurrency,
			Pacing:      macd.Pacing,
			TopN:        macd.TopN,
			BottomN:     macd.BottomN,
		},
	}
}

func universeParams(cfg *config.Config, s config.ScannerConfig) marketapi.UniverseParams {
	return marketapi.UniverseParams{
		MinQuoteVolume: s.MinQuoteVolume,
		MaxInstruments: s.MaxInstruments,
		QuoteSuffix:    cfg.API.QuoteSuffix,
		Excluded:       append([]string(nil), s.Excluded...),
	}
}

func seriesParams(s config.ScannerConfig) marketapi.SeriesParams {
	return marketapi.SeriesParams{
		Interval:    s.Interval,
		BarLimit:    s.BarLimit,
		MinBars:     s.MinBars,
		DropOpenBar: s.DropOpenBar,
	}
}

// Override adjusts a ScanConfig for a single request. Zero fields are ignored.
type Override struct {
	MaxInstruments int
	MinQuoteVolume float64
	Interval       string
}

func (o Override) apply(c ScanConfig) ScanConfig {
	if o.MaxInstruments > 0 {
		c.Universe.MaxInstruments = o.MaxInstruments
	}
	if o.MinQuoteVolume > 0 {
		c.Universe.MinQuoteVolume = o.MinQuoteVolume
	}
	if o.Interval != "" {
		c.Series.Interval = o.Interval
	}
	return c
}
