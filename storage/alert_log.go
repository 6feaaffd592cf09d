package storage

import (
	"argus/core"
)

// AlertLog is the append-only alert sink
type AlertLog struct {
	w *JSONLWriter
}

// OpenAlertLog opens the alert log at path for appending
func OpenAlertLog(path string) (*AlertLog, error) {
	w, err := OpenJSONL(path)
	if err != nil {
		return nil, err
	}
	return &AlertLog{w: w}, nil
}

// Append writes one alert as a JSON line
func (l *AlertLog) Append(a *core.Alert) error {
	return l.w.Write(a)
}

// Close closes the underlying file
func (l *AlertLog) Close() error {
	return l.w.Close()
}
