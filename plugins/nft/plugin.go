// Package nft is the NFT business plugin: it declares the gas budgets for
// mint and transfer operations and exposes the relay endpoints for them.
package nft

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/plugin"
	"github.com/sponsorlabs/gasrelay/relay"
)

const (
	mintGasLimit     = 150_000
	transferGasLimit = 80_000
)

// Plugin relays NFT mint and transfer transactions.
type Plugin struct {
	engine *relay.Engine
	logger logging.Logger
}

// New creates the NFT plugin.
func New() *Plugin {
	return &Plugin{logger: logging.New("nft")}
}

func (p *Plugin) Name() string { return "nft" }

func (p *Plugin) APIPrefix() string { return "/api/nft" }

func (p *Plugin) OpenAPITags() []string { return []string{"NFT"} }

func (p *Plugin) GasOperations() []gasrelay.OperationBudget {
	return []gasrelay.OperationBudget{
		{Operation: "mint", GasLimit: mintGasLimit, FunctionTag: "mint(address,uint256)"},
		{Operation: "transfer", GasLimit: transferGasLimit, FunctionTag: "safeTransferFrom(address,address,uint256)"},
	}
}

func (p *Plugin) Initialize(engine *relay.Engine) error {
	p.engine = engine
	p.logger.Infof("NFT plugin ready")
	return nil
}

func (p *Plugin) RegisterRoutes(router *mux.Router) {
	for _, budget := range p.GasOperations() {
		router.HandleFunc("/"+budget.Operation, plugin.RelayHandler(p.engine, budget)).Methods(http.MethodPost)
	}
}
