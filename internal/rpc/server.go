// Package rpc serves a local ledger over the Solana JSON-RPC 2.0 API and
// defines the wire types shared with the client.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/localnet"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	ledger      *localnet.Ledger
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server for ledger. The optional cfg controls IP
// filtering and CORS; a zero value allows all IPs and disables CORS.
func New(addr string, ledger *localnet.Ledger, cfg ...config.LocalnetConfig) *Server {
	s := &Server{
		addr:   addr,
		ledger: ledger,
		logger: klog.RPC,
	}

	if len(cfg) > 0 {
		s.allowedNets = parseAllowedIPs(cfg[0].AllowedIPs)
		s.corsOrigins = cfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// URL returns the HTTP endpoint of the server.
func (s *Server) URL() string {
	return "http://" + s.Addr() + "/"
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
	if len(s.allowedNets) > 0 {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip := net.ParseIP(host)
		if ip == nil || !s.isIPAllowed(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	s.setCORSHeaders(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "getHealth":
		return "ok", nil
	case "getSlot":
		return s.handleGetSlot(req)
	case "getBlockHeight":
		return s.handleGetSlot(req)
	case "getLatestBlockhash":
		return s.handleGetLatestBlockhash(req)
	case "isBlockhashValid":
		return s.handleIsBlockhashValid(req)
	case "getAccountInfo":
		return s.handleGetAccountInfo(req)
	case "getMultipleAccounts":
		return s.handleGetMultipleAccounts(req)
	case "getBalance":
		return s.handleGetBalance(req)
	case "getMinimumBalanceForRentExemption":
		return s.handleGetMinimumBalance(req)
	case "simulateTransaction":
		return s.handleSimulateTransaction(req)
	case "sendTransaction":
		return s.handleSendTransaction(req)
	case "getSignatureStatuses":
		return s.handleGetSignatureStatuses(req)
	case "requestAirdrop":
		return s.handleRequestAirdrop(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the positional params of req into targets, in
// order. Trailing targets without a matching element keep their zero
// value; the first required ones must be present.
func parseParams(req *Request, required int, targets ...interface{}) *Error {
	var elems []json.RawMessage
	if req.Params != nil {
		data, err := json.Marshal(req.Params)
		if err != nil {
			return &Error{Code: CodeInvalidParams, Message: "invalid params"}
		}
		if err := json.Unmarshal(data, &elems); err != nil {
			return &Error{Code: CodeInvalidParams, Message: "params must be an array"}
		}
	}
	if len(elems) < required {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("`params` should have at least %d argument(s)", required)}
	}
	if len(elems) > len(targets) {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("`params` should have at most %d argument(s)", len(targets))}
	}
	for i, raw := range elems {
		if string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, targets[i]); err != nil {
			return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
	}
	return nil
}
