package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/sponsorlabs/gasrelay/chain"
	"github.com/sponsorlabs/gasrelay/gas"
	"github.com/sponsorlabs/gasrelay/history"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/plugin"
)

// serviceName identifies this service in health responses.
const serviceName = "gasrelay"

// GasCostItem is one row of the gas-cost listing.
type GasCostItem struct {
	Operation       string `json:"operation"`
	FunctionTag     string `json:"functionTag,omitempty"`
	GasLimit        uint64 `json:"gasLimit"`
	GasPriceWei     string `json:"gasPriceWei"`
	TotalCostWei    string `json:"totalCostWei"`
	TotalCostNative string `json:"totalCostNative"`
}

// Handlers carries the non-plugin endpoint implementations.
type Handlers struct {
	registry *plugin.Registry
	client   chain.Client
	policy   *gas.Policy
	hist     *history.Store
	logger   logging.Logger
}

// NewHandlers creates the handler set. hist may be nil when history is
// disabled.
func NewHandlers(registry *plugin.Registry, client chain.Client, policy *gas.Policy, hist *history.Store) *Handlers {
	return &Handlers{
		registry: registry,
		client:   client,
		policy:   policy,
		hist:     hist,
		logger:   logging.New("api"),
	}
}

// Health reports liveness and the active plugins. Served without auth.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   serviceName,
		"plugins":   h.registry.ActivePlugins(),
	})
}

// Ping is a bare liveness probe.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GasCosts lists every declared operation with its cost at the current
// network gas price.
func (h *Handlers) GasCosts(w http.ResponseWriter, r *http.Request) {
	gasPrice, err := h.client.NetworkGasPrice(r.Context())
	if err != nil {
		h.logger.Errorf("gas price unavailable for gas-costs: %v", err)
		writeError(w, http.StatusInternalServerError, "gas price unavailable")
		return
	}
	gasPrice = h.policy.GasPriceFloor(gasPrice)

	ops := h.registry.AllGasOperations()
	items := make([]GasCostItem, 0, len(ops))
	for _, op := range ops {
		total := new(big.Int).Mul(new(big.Int).SetUint64(op.GasLimit), gasPrice)
		items = append(items, GasCostItem{
			Operation:       op.Operation,
			FunctionTag:     op.FunctionTag,
			GasLimit:        op.GasLimit,
			GasPriceWei:     gasPrice.String(),
			TotalCostWei:    total.String(),
			TotalCostNative: weiToNativeDecimal(total),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"gasCosts": items})
}

// History returns recent relay outcomes, newest first. Auth-gated like every
// non-bypass route.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := h.hist.Recent(limit)
	if err != nil {
		h.logger.Errorf("history read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":     http.StatusText(status),
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// weiToNativeDecimal renders a wei amount in native coin units.
func weiToNativeDecimal(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', 18)
}
