package observerproto

import "asteroidworks.ai/internal/sim/board"

// Version is the observer protocol version (separate from the bidder WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Bid audits carry the private amount; they are only streamed when asked for.
	IncludeBids bool `json:"include_bids,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	BoardID         string     `json:"board_id"`
	Tick            uint64     `json:"tick"`
	Currency        string     `json:"currency"`
	LocalBidder     string     `json:"local_bidder"`
	TilesDigest     string     `json:"tiles_digest"`
	Tiles           []TileInfo `json:"tiles"`
}

type TileInfo struct {
	ID       string   `json:"id"`
	SaveCode string   `json:"save_code"`
	Name     string   `json:"name"`
	Value    int      `json:"value,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Server -> Client. Sent once after SUBSCRIBE with every contract in full,
// reserves included.
type StateMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Contracts       []ContractState `json:"contracts"`
}

type ContractState struct {
	ID          string `json:"id"`
	Phase       string `json:"phase"`
	CreatedTick uint64 `json:"created_tick"`
	Record      string `json:"record"`
	Description string `json:"description"`
}

// Server -> Client. One per board event.
type AuditMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Audit           board.AuditEntry `json:"audit"`
}
