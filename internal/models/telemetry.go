package models

import "time"

// TelemetrySample одна точка живой телеметрии (например, RSRP в дБм).
type TelemetrySample struct {
	Source string    `json:"source"`
	Value  float64   `json:"value"`
	At     time.Time `json:"at"`
}

// DummyTelemetrySample тело запроса с точкой телеметрии.
type DummyTelemetrySample struct {
	Source string     `json:"source" validate:"required,max=64"`
	Value  float64    `json:"value"`
	At     *time.Time `json:"at,omitempty"`
}
