package models

// Requests for HTTP and websocket endpoints.

type HistoryRequest struct {
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=1000"`
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,symbol"`
}

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" json:"tf" default:"1s" validate:"oneof=1s 1m 5m"`
	Limit  int    `query:"limit" json:"limit" default:"300" validate:"gte=1,lte=7200"`
}

// ControlMessage is an inbound websocket message.
type ControlMessage struct {
	Type   string `json:"type"`
	Pair   string `json:"pair,omitempty"`
	Market string `json:"market,omitempty"`
}

const (
	ControlSignalNow = "reqSignalNow"
	ControlExecTrade = "execTrade"
)
