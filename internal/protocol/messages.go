package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Bidder          string `json:"bidder"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Bidder          string `json:"bidder"`
	BoardID         string `json:"board_id"`
	Tick            uint64 `json:"tick"`
	Currency        string `json:"currency"`
	TilesDigest     string `json:"tiles_digest,omitempty"`
}

// BOARD (server -> client): the full listing as seen by one bidder.
type BoardMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Contracts       []ContractView `json:"contracts"`
}

// BID (client -> server)
type BidMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ContractID      string `json:"contract_id"`
	Amount          int    `json:"amount"`
}

type BidResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ContractID      string `json:"contract_id"`
	Accepted        bool   `json:"accepted"`
	Reason          string `json:"reason,omitempty"`
	Payout          int    `json:"payout"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// EVENT (server -> client), one per board event.
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Event           string          `json:"event"`
	Contract        ContractView    `json:"contract"`
	Bidder          string          `json:"bidder,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Settlement      *SettlementView `json:"settlement,omitempty"`
}

type SettlementView struct {
	Success bool   `json:"success"`
	Winner  string `json:"winner"`
	Payout  int    `json:"payout"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
