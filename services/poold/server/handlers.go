package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	coreerrors "creditpool/core/errors"
	"creditpool/native/market"
	"creditpool/native/pool"
	"creditpool/native/ratekeeper"
	"creditpool/observability"
	"creditpool/services/poold/middleware"
)

const maxBodyBytes = 1 << 20

type borrowRequest struct {
	Amount string `json:"amount"`
}

type repayRequest struct {
	Repaid string `json:"repaid"`
	Profit string `json:"profit"`
	Loss   string `json:"loss"`
}

type repayResponse struct {
	SharesMinted  string `json:"sharesMinted"`
	SharesBurned  string `json:"sharesBurned"`
	UncoveredLoss string `json:"uncoveredLoss"`
}

type updateQuotaRequest struct {
	Position string `json:"position"`
	Asset    string `json:"asset"`
	Delta    string `json:"delta"`
	// MinQuota and MaxQuota bound the resulting quota; empty is open.
	MinQuota string `json:"minQuota"`
	MaxQuota string `json:"maxQuota"`
	// RemoveAll decreases the quota to zero regardless of Delta.
	RemoveAll bool `json:"removeAll"`
}

type quotaChangeResponse struct {
	Interest      string `json:"interest"`
	Fees          string `json:"fees"`
	RealizedDelta string `json:"realizedDelta"`
	Enabled       bool   `json:"enabled"`
	Disabled      bool   `json:"disabled"`
}

type positionAssetsRequest struct {
	Position   string   `json:"position"`
	Assets     []string `json:"assets"`
	ZeroLimits bool     `json:"zeroLimits"`
}

type registerRequest struct {
	Asset      string `json:"asset"`
	MinRateBps uint16 `json:"minRateBps"`
	MaxRateBps uint16 `json:"maxRateBps"`
	RateBps    uint16 `json:"rateBps"`
}

type voteRequest struct {
	Asset string `json:"asset"`
	Votes string `json:"votes"`
	Side  string `json:"side"`
}

type votesResponse struct {
	Voter   string `json:"voter"`
	Asset   string `json:"asset"`
	MinSide string `json:"minSide"`
	MaxSide string `json:"maxSide"`
}

type freezeRequest struct {
	Frozen bool `json:"frozen"`
}

type epochLengthRequest struct {
	Seconds uint64 `json:"seconds"`
}

type limitRequest struct {
	Address string `json:"address"`
	Limit   string `json:"limit"`
}

type feeRequest struct {
	Address string `json:"address"`
	FeeBps  uint16 `json:"feeBps"`
}

type moduleRequest struct {
	Module string `json:"module"`
}

type snapshotResponse struct {
	Head uint64 `json:"head"`
	Root string `json:"root"`
}

func decodeBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body required")
		}
		return badRequest("decode body: %v", err)
	}
	return nil
}

func callerOf(r *http.Request) (common.Address, error) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return common.Address{}, fmt.Errorf("%w: authenticated caller required", coreerrors.ErrUnauthorized)
	}
	return caller, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, badRequest("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAddresses(field string, raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	for i, entry := range raw {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// parseInt decodes a base-10 integer. Empty input yields nil so callers can
// distinguish "not provided" from zero.
func parseInt(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequest("%s: invalid integer %q", field, raw)
	}
	return v, nil
}

func requireAmount(field, raw string) (*big.Int, error) {
	v, err := parseInt(field, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, badRequest("%s: required", field)
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func pathAddress(r *http.Request, param string) (common.Address, error) {
	return parseAddress(param, chi.URLParam(r, param))
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Pool())
}

func (s *Server) handleBorrowers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Borrowers())
}

func (s *Server) handleBorrower(w http.ResponseWriter, r *http.Request) {
	borrower, err := pathAddress(r, "borrower")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.market.Borrower(borrower))
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := pathAddress(r, "holder")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.market.Holder(holder))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleShareOp(w, r, "assets", "shares", s.market.Deposit)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.handleShareOp(w, r, "shares", "assets", s.market.Mint)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleShareOp(w, r, "assets", "shares", s.market.Withdraw)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.handleShareOp(w, r, "shares", "assets", s.market.Redeem)
}

type shareOp func(caller common.Address, amount *big.Int, receiver common.Address) (*big.Int, error)

// handleShareOp serves the four liquidity entry points, which all take an
// amount and a receiver and return the counter-amount.
func (s *Server) handleShareOp(w http.ResponseWriter, r *http.Request, inField, outField string, op shareOp) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var raw map[string]string
	if err := decodeBody(r, &raw); err != nil {
		s.fail(w, r, err)
		return
	}
	for key := range raw {
		if key != inField && key != "receiver" {
			s.fail(w, r, badRequest("unknown field %q", key))
			return
		}
	}
	amount, err := requireAmount(inField, raw[inField])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receiver := caller
	if strings.TrimSpace(raw["receiver"]) != "" {
		if receiver, err = parseAddress("receiver", raw["receiver"]); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	out, err := op(caller, amount, receiver)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, map[string]string{outField: amountString(out)})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req borrowRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := requireAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.Borrow(caller, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Borrower(caller))
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req repayRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	repaid, err := requireAmount("repaid", req.Repaid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	profit, err := parseInt("profit", req.Profit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loss, err := parseInt("loss", req.Loss)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.market.Repay(caller, market.Repayment{Repaid: repaid, Profit: profit, Loss: loss})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, repayResponse{
		SharesMinted:  amountString(result.SharesMinted),
		SharesBurned:  amountString(result.SharesBurned),
		UncoveredLoss: amountString(result.UncoveredLoss),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.View().Assets)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	position, err := pathAddress(r, "position")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.market.Position(position, asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateQuota(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateQuotaRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	position, err := parseAddress("position", req.Position)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	delta := market.RemoveAll()
	if !req.RemoveAll {
		if delta, err = requireAmount("delta", req.Delta); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	minQuota, err := parseInt("minQuota", req.MinQuota)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	maxQuota, err := parseInt("maxQuota", req.MaxQuota)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	change, err := s.market.UpdateQuota(caller, position, asset, delta, minQuota, maxQuota)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, quotaChangeResponse{
		Interest:      amountString(change.Interest),
		Fees:          amountString(change.Fees),
		RealizedDelta: amountString(change.RealizedDelta),
		Enabled:       change.Enabled,
		Disabled:      change.Disabled,
	})
}

func (s *Server) decodePositionAssets(r *http.Request) (common.Address, common.Address, []common.Address, bool, error) {
	caller, err := callerOf(r)
	if err != nil {
		return common.Address{}, common.Address{}, nil, false, err
	}
	var req positionAssetsRequest
	if err := decodeBody(r, &req); err != nil {
		return common.Address{}, common.Address{}, nil, false, err
	}
	position, err := parseAddress("position", req.Position)
	if err != nil {
		return common.Address{}, common.Address{}, nil, false, err
	}
	assets, err := parseAddresses("assets", req.Assets)
	if err != nil {
		return common.Address{}, common.Address{}, nil, false, err
	}
	return caller, position, assets, req.ZeroLimits, nil
}

func (s *Server) handleRemoveQuotas(w http.ResponseWriter, r *http.Request) {
	caller, position, assets, zeroLimits, err := s.decodePositionAssets(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	removed, err := s.market.RemoveQuotas(caller, position, assets, zeroLimits)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	out := make([]string, 0, len(removed))
	for _, asset := range removed {
		out = append(out, asset.Hex())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"removed": out})
}

func (s *Server) handleAccrueInterest(w http.ResponseWriter, r *http.Request) {
	caller, position, assets, _, err := s.decodePositionAssets(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	interest, err := s.market.AccrueInterest(caller, position, assets)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, map[string]string{"interest": amountString(interest)})
}

func (s *Server) handleKeeper(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Keeper())
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	voter, err := pathAddress(r, "voter")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := pathAddress(r, "asset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	votes, err := s.market.VotesOf(voter, asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := votesResponse{Voter: voter.Hex(), Asset: asset.Hex(), MinSide: "0", MaxSide: "0"}
	if votes.MinSide != nil {
		resp.MinSide = votes.MinSide.Dec()
	}
	if votes.MaxSide != nil {
		resp.MaxSide = votes.MaxSide.Dec()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	band := ratekeeper.RateBand{Min: req.MinRateBps, Max: req.MaxRateBps}
	if s.market.KeeperKind() == ratekeeper.KindTumbler {
		band = ratekeeper.FixedRate(req.RateBps)
	}
	if err := s.market.RegisterAsset(caller, asset, band); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	s.handleVoteOp(w, r, s.market.Vote)
}

func (s *Server) handleUnvote(w http.ResponseWriter, r *http.Request) {
	s.handleVoteOp(w, r, s.market.Unvote)
}

type voteOp func(caller, asset common.Address, votes *uint256.Int, side ratekeeper.Side) error

func (s *Server) handleVoteOp(w http.ResponseWriter, r *http.Request, op voteOp) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	votes, err := uint256.FromDecimal(strings.TrimSpace(req.Votes))
	if err != nil {
		s.fail(w, r, badRequest("votes: invalid amount %q", req.Votes))
		return
	}
	side, err := ratekeeper.ParseSide(req.Side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := op(caller, asset, votes, side); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBand(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.ChangeRateBand(caller, asset, ratekeeper.RateBand{Min: req.MinRateBps, Max: req.MaxRateBps}); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req freezeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetFrozenEpoch(caller, req.Frozen); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Keeper())
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetRate(caller, asset, req.RateBps); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEpochLength(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req epochLengthRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetEpochLength(caller, req.Seconds); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Keeper())
}

// handleRefresh pushes keeper rates when an epoch is due. It needs no
// authority: pushing is permissionless once due.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := s.Refresh()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"refreshed": refreshed, "keeper": s.market.Keeper()})
}

// Refresh runs one epoch check, recording the outcome and persisting after a
// push. The scheduler and the refresh endpoint share it.
func (s *Server) Refresh() (bool, error) {
	refreshed, err := s.market.RefreshIfDue()
	switch {
	case err != nil:
		observability.Ledger().RecordRefresh("error")
		return false, err
	case !refreshed:
		observability.Ledger().RecordRefresh("skipped")
		return false, nil
	}
	observability.Ledger().RecordRefresh("pushed")
	observability.Ledger().ObserveView(s.market.View())
	if _, err := s.Persist(); err != nil {
		s.logger.Error("snapshot persist after refresh failed", "error", err)
	}
	return true, nil
}

func (s *Server) handleTotalDebtLimit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req limitRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseInt("limit", req.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetTotalDebtLimit(caller, limit); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Pool())
}

func (s *Server) handleBorrowerDebtLimit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req limitRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	borrower, err := parseAddress("address", req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseInt("limit", req.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetBorrowerDebtLimit(caller, borrower, limit); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Borrower(borrower))
}

func (s *Server) handleWithdrawFee(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req feeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetWithdrawFee(caller, req.FeeBps); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Pool())
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req limitRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	treasury, err := parseAddress("address", req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetTreasury(caller, treasury); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Pool())
}

func (s *Server) handleTokenLimit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req limitRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("address", req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseInt("limit", req.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit == nil {
		limit = new(big.Int).Set(pool.Unlimited)
	}
	if err := s.market.SetTokenLimit(caller, asset, limit); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTokenFee(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req feeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("address", req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.market.SetTokenIncreaseFee(caller, asset, req.FeeBps); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	view, err := s.market.Asset(asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleModuleOp(w, r, s.market.Pause)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.handleModuleOp(w, r, s.market.Unpause)
}

func (s *Server) handleModuleOp(w http.ResponseWriter, r *http.Request, op func(common.Address, string) error) {
	caller, err := callerOf(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req moduleRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := op(caller, strings.ToLower(strings.TrimSpace(req.Module))); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r)
	writeJSON(w, http.StatusOK, s.market.Pool())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	root, err := s.market.StateRoot()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := snapshotResponse{Root: root}
	if s.store != nil {
		head, err := s.store.Head()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Head = head
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents pages through the journal. By default it returns entries after
// a cursor, oldest first; type= or order=latest return the newest entries
// instead.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	after, _, err := parseCursor(query.Get("after"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit := 100
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			s.fail(w, r, badRequest("limit must be within [1,1000]"))
			return
		}
		limit = parsed
	}
	var history []Message
	eventType := strings.TrimSpace(query.Get("type"))
	if eventType != "" || query.Get("order") == "latest" {
		if query.Get("after") != "" {
			s.fail(w, r, badRequest("after cannot be combined with type or order=latest"))
			return
		}
		history, err = s.hub.Latest(eventType, limit)
	} else {
		history, err = s.hub.History(after, limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if history == nil {
		history = []Message{}
	}
	writeJSON(w, http.StatusOK, history)
}
