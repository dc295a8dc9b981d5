package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"SignalScan/internal/domain/models"
)

// renderResult prints the scan summary, one table per bucket and the volume extremes.
func renderResult(w io.Writer, r *models.ScanResult, limit int) {
	m := r.Meta
	fmt.Fprintf(w, "%s scan %s: %s, %d/%d instruments via %s in %s\n",
		m.Kind, m.ID, m.StopReason, m.Scanned, m.Total, m.Endpoint, m.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "classified=%d insufficient=%d failed=%d skipped=%d\n",
		m.Counters.Classified, m.Counters.Insufficient, m.Counters.Failed, m.Counters.Skipped)
	if m.Error != "" {
		fmt.Fprintf(w, "error: %s\n", m.Error)
	}

	for _, b := range models.BucketsFor(m.Kind) {
		hits := r.Buckets[b]
		fmt.Fprintf(w, "\n== %s (%d)\n", b, len(hits))
		if limit > 0 && len(hits) > limit {
			hits = hits[:limit]
		}
		writeHits(w, m.Kind, hits)

		if ve, ok := r.VolumeExtremes[b]; ok && (len(ve.Top) > 0 || len(ve.Bottom) > 0) {
			fmt.Fprintf(w, "-- %s top volume\n", b)
			writeHits(w, m.Kind, ve.Top)
			fmt.Fprintf(w, "-- %s bottom volume\n", b)
			writeHits(w, m.Kind, ve.Bottom)
		}
	}
}

func writeHits(w io.Writer, kind models.Kind, hits []models.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch kind {
	case models.KindEMACross:
		fmt.Fprintln(tw, "SYMBOL\tCLOSE\tFAST\tSLOW\tDIFF\tDIFF%\tQUOTE VOL\tBAR")
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.3f\t%s\t%s\n",
				h.Symbol, num(h.LastClose), num(h.FastEMA), num(h.SlowEMA), num(h.Diff), h.DiffPct,
				volume(h.QuoteVolume), h.BarTime.UTC().Format("01-02 15:04"))
		}
	case models.KindMACDDivergence:
		fmt.Fprintln(tw, "SYMBOL\tPRICE\tMACD\tSIGNAL\tHIST\tPIVOT\tQUOTE VOL\tBAR")
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				h.Symbol, num(h.LastPrice), num(h.MACD), num(h.Signal), num(h.Histogram), num(h.PivotPrice),
				volume(h.QuoteVolume), h.BarTime.UTC().Format("01-02 15:04"))
		}
	}
	_ = tw.Flush()
}

func num(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func volume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}
