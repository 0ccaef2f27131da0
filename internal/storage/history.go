package storage

import (
	"time"

	"github.com/google/uuid"

	"scopebench/internal/runner"
	"scopebench/internal/stats"
)

type HistoryItem struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Instrument string        `json:"instrument"`
	Resource   string        `json:"resource"`
	Config     runner.Config `json:"config"`
	Report     stats.Report  `json:"report"`
}

// NewHistoryItem stamps a finished run with a fresh ID.
func NewHistoryItem(instrument, resource string, cfg runner.Config, report stats.Report) HistoryItem {
	return HistoryItem{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		Instrument: instrument,
		Resource:   resource,
		Config:     cfg,
		Report:     report,
	}
}
