// Package model defines the value types shared across the DevSentry pipeline.
package model

import "time"

// RawEvent is one entry read from the operating-system event log.
// Events are produced by an external log source and are read-only to the
// detection pipeline.
type RawEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	EventID   int       `json:"event_id"`
	Message   string    `json:"message"`
}

// ClassificationResult is the terminal value of one classification attempt.
// It is handed to the caller and never mutated after creation.
//
// When Erred is true the classifier was unreachable or returned an unusable
// response; IsAbnormal is always false in that case. Callers must distinguish
// "no verdict" (Erred) from "classified normal" (!Erred && !IsAbnormal).
type ClassificationResult struct {
	RawResponse     string   `json:"raw_response"`
	IsAbnormal      bool     `json:"is_abnormal"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Erred           bool     `json:"erred"`
	ErrorDetail     string   `json:"error_detail,omitempty"`
}

// HardwareDevice describes one locally attached device captured in a
// session's hardware snapshot.
type HardwareDevice struct {
	Kind        string `json:"kind"` // "serial" or "usb"
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DeviceID    string `json:"device_id"`
}
