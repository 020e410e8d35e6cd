// Package mcp exposes the board to agents as MCP tools. Every bid placed
// through it is made on behalf of the local player.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"asteroidworks.ai/internal/protocol"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/grid"
)

const serverInstructions = `Asteroid contract board. Contracts are reverse auctions: the lowest bid
holds the contract and the payout drops as rivals undercut. Use list_contracts
to see open work, place_bid to undercut as the local player, and
settle_contract with the finished asteroid layout once a won contract is
awaiting settlement.`

type Config struct {
	Board    *board.Board
	Tiles    *catalogs.TileCatalog
	Currency string
	Version  string
	Logger   *log.Logger
}

type tools struct {
	board    *board.Board
	tiles    *catalogs.TileCatalog
	currency string
	log      *log.Logger
}

func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "asteroidworks",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
	})

	t := &tools{board: cfg.Board, tiles: cfg.Tiles, currency: cfg.Currency, log: logger}
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_contracts",
		Description: "List every contract on the board with its payout, deadline and requirements",
	}, t.listContracts)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_contract",
		Description: "Get one contract including the full description text",
	}, t.getContract)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "place_bid",
		Description: "Bid on an open contract as the local player; lower amounts undercut",
	}, t.placeBid)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "settle_contract",
		Description: "Deliver an asteroid layout for a won contract awaiting settlement",
	}, t.settleContract)
	return server
}

// NewHTTPHandler serves the streamable HTTP transport for one shared server.
func NewHTTPHandler(server *sdkmcp.Server) http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)
}

type listArgs struct {
	Phase string `json:"phase,omitempty" jsonschema:"only list contracts in this phase (bidding or awaiting)"`
}

type listResult struct {
	Tick      uint64                  `json:"tick"`
	Contracts []protocol.ContractView `json:"contracts"`
}

func (t *tools) listContracts(ctx context.Context, req *sdkmcp.CallToolRequest, args listArgs) (*sdkmcp.CallToolResult, listResult, error) {
	now := t.board.Now()
	out := listResult{Tick: now, Contracts: []protocol.ContractView{}}
	for _, e := range t.board.List() {
		if args.Phase != "" && string(e.Phase) != args.Phase {
			continue
		}
		out.Contracts = append(out.Contracts, protocol.ContractFor(e, t.board.LocalBidder(), now, t.currency))
	}
	return nil, out, nil
}

type contractArgs struct {
	ContractID string `json:"contract_id" jsonschema:"contract id such as C12"`
}

type contractResult struct {
	Contract    protocol.ContractView `json:"contract"`
	Description string                `json:"description"`
}

func (t *tools) getContract(ctx context.Context, req *sdkmcp.CallToolRequest, args contractArgs) (*sdkmcp.CallToolResult, contractResult, error) {
	e, ok := t.board.Get(args.ContractID)
	if !ok {
		return nil, contractResult{}, fmt.Errorf("%s: %w", protocol.ErrNotFound, board.ErrNotFound)
	}
	return nil, contractResult{
		Contract:    protocol.ContractFor(e, t.board.LocalBidder(), t.board.Now(), t.currency),
		Description: e.Contract.Describe(t.currency),
	}, nil
}

type bidArgs struct {
	ContractID string `json:"contract_id" jsonschema:"contract id such as C12"`
	Amount     int    `json:"amount" jsonschema:"bid amount; must be below the current payout to take the contract"`
}

type bidResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Payout   int    `json:"payout"`
}

func (t *tools) placeBid(ctx context.Context, req *sdkmcp.CallToolRequest, args bidArgs) (*sdkmcp.CallToolResult, bidResult, error) {
	out, err := t.board.Bid(args.ContractID, t.board.LocalBidder(), args.Amount)
	if err != nil {
		return nil, bidResult{}, fmt.Errorf("%s: %w", protocol.CodeFor(err), err)
	}
	t.log.Printf("place_bid %s amount=%d reason=%s", args.ContractID, args.Amount, out.Reason)
	return nil, bidResult{Accepted: out.Accepted, Reason: string(out.Reason), Payout: out.PayoutAfter}, nil
}

type settleArgs struct {
	ContractID string   `json:"contract_id" jsonschema:"id of a contract awaiting settlement"`
	Rows       []string `json:"rows,omitempty" jsonschema:"asteroid layout, one string per row of comma-separated tile save codes; empty cells are blank or '.'"`
	RLE        string   `json:"rle,omitempty" jsonschema:"alternative to rows: base64 run-length encoded tile palette indexes, row-major; needs width and height"`
	Width      int      `json:"width,omitempty" jsonschema:"grid width for rle"`
	Height     int      `json:"height,omitempty" jsonschema:"grid height for rle"`
}

// layout builds the delivered grid from whichever form the caller sent.
func (a settleArgs) layout(tiles *catalogs.TileCatalog) (*grid.Tilemap, error) {
	if a.RLE == "" {
		return grid.ParseRows(tiles, a.Rows)
	}
	if len(a.Rows) > 0 {
		return nil, errors.New("send rows or rle, not both")
	}
	return grid.Decode(tiles, a.Width, a.Height, a.RLE)
}

type settleResult struct {
	Success bool   `json:"success"`
	Winner  string `json:"winner"`
	Payout  int    `json:"payout"`
}

func (t *tools) settleContract(ctx context.Context, req *sdkmcp.CallToolRequest, args settleArgs) (*sdkmcp.CallToolResult, settleResult, error) {
	g, err := args.layout(t.tiles)
	if err != nil {
		return nil, settleResult{}, fmt.Errorf("%s: %w", protocol.ErrBadRequest, err)
	}
	s, err := t.board.Settle(args.ContractID, g)
	if err != nil {
		code := protocol.CodeFor(err)
		if !errors.Is(err, board.ErrNotFound) && !errors.Is(err, board.ErrNotAwaiting) {
			t.log.Printf("settle_contract %s: %v", args.ContractID, err)
		}
		return nil, settleResult{}, fmt.Errorf("%s: %w", code, err)
	}
	return nil, settleResult{Success: s.Success, Winner: string(s.Winner), Payout: s.Payout}, nil
}
