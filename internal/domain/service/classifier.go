package service

import "SignalScan/internal/domain/models"

// Classifier assigns a series to zero or more buckets of its kind.
// Implementations are pure: the same series and instrument always give the same hits.
type Classifier interface {
	Kind() models.Kind
	// MinBars is the shortest series the classifier accepts.
	MinBars() int
	Classify(inst models.Instrument, s models.Series) []models.Hit
	Params() map[string]interface{}
}
