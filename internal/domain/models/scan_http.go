package models

// Requests for scan HTTP endpoints.

type StartScanRequest struct {
	Kind Kind `param:"kind" json:"kind" validate:"required,oneof=ema_cross macd_divergence"`
	// Optional overrides on top of the configured scanner.
	MaxInstruments int     `query:"max_instruments" json:"max_instruments" validate:"gte=0,lte=2000"`
	MinQuoteVolume float64 `query:"min_quote_volume" json:"min_quote_volume" validate:"gte=0"`
	Interval       string  `query:"interval" json:"interval" validate:"omitempty,oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w"`
}

type LatestScanRequest struct {
	Kind   Kind   `param:"kind" json:"kind" validate:"required,oneof=ema_cross macd_divergence"`
	Bucket Bucket `query:"bucket" json:"bucket" validate:"omitempty,oneof=crossed imminent preparing bullish_divergence bearish_divergence"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=2000"`
}

type StartScanResponse struct {
	Kind    Kind   `json:"kind"`
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// SessionStatus is the scan session snapshot served to clients.
type SessionStatus struct {
	Running   bool               `json:"running"`
	Kind      Kind               `json:"kind,omitempty"`
	Stopping  bool               `json:"stopping"`
	Progress  *Progress          `json:"progress,omitempty"`
	LastError string             `json:"last_error,omitempty"`
	LastScans map[Kind]*ScanMeta `json:"last_scans,omitempty"`
}

// LatestScanResponse pairs the last good result with the error of the most recent scan, if any.
type LatestScanResponse struct {
	Result    *ScanResult `json:"result"`
	LastError string      `json:"last_error,omitempty"`
}

// StreamMessage is one websocket frame: "status" carries a SessionStatus, "progress" a Progress.
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
