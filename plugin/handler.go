package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/auth"
	"github.com/sponsorlabs/gasrelay/relay"
)

// relayTimeout bounds one relay call including funding and receipt waits.
const relayTimeout = 120 * time.Second

// RelayHandler builds the standard relay endpoint for one declared
// operation: it parses the relay request body, forces the plugin's operation
// name and expected gas limit, and delegates to the engine.
func RelayHandler(engine *relay.Engine, budget gasrelay.OperationBudget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gasrelay.RelayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.SignedTransactionHex == "" {
			writeJSONError(w, http.StatusBadRequest, "signedTransactionHex is required")
			return
		}
		req.OperationName = budget.Operation
		req.ExpectedGasLimit = budget.GasLimit

		ctx, cancel := context.WithTimeout(r.Context(), relayTimeout)
		defer cancel()

		outcome := engine.Process(ctx, auth.TenantFrom(r.Context()), req)
		status := http.StatusOK
		if !outcome.Success && outcome.TransactionHash == "" {
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(outcome)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":     http.StatusText(status),
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
