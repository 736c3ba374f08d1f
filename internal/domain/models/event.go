package models

import "time"

type EventType string

const (
	EventSignal       EventType = "signal"
	EventSignalResult EventType = "signal_result"
	EventLog          EventType = "log"
	EventInfo         EventType = "info"
	EventError        EventType = "error"
)

// Event is what the broadcast sink publishes.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ResultEvent is the payload of a signal_result event.
type ResultEvent struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Time       time.Time `json:"time_iso"`
	Result     Result    `json:"result"`
	FinalPrice float64   `json:"finalPrice"`
}

// Greeting is sent to a websocket client on connect.
type Greeting struct {
	Type         EventType `json:"type"`
	ServerTime   time.Time `json:"server_time"`
	ServerOffset int64     `json:"server_offset"`
}
