package protocol

import "time"

// Breadcrumb is something that happened before an event was captured
type Breadcrumb struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Level          `json:"level"`
	Data      map[string]any `json:"data,omitempty"`
}
