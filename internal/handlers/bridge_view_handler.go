package handlers

import (
	"net/http"

	"bridge-backend/internal/services"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BridgeViewHandler read endpoints over the per-chain views
type BridgeViewHandler struct {
	views  *services.BridgeViewService
	meta   *services.MetadataResolver
	logger *logrus.Entry
}

// NewBridgeViewHandler creates the view handler
func NewBridgeViewHandler(views *services.BridgeViewService, meta *services.MetadataResolver, logger *logrus.Logger) *BridgeViewHandler {
	return &BridgeViewHandler{
		views:  views,
		meta:   meta,
		logger: logger.WithField("component", "view_handler"),
	}
}

// ListChains GET /api/chains
func (h *BridgeViewHandler) ListChains(c *gin.Context) {
	chains := h.views.Chains()
	c.JSON(http.StatusOK, gin.H{
		"chains": chains,
		"count":  len(chains),
	})
}

// GetDeposits GET /api/chains/:chainId/deposits?actor=0x..
func (h *BridgeViewHandler) GetDeposits(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}
	actor, ok := actorQuery(c)
	if !ok {
		return
	}

	view, err := h.views.DepositView(c.Request.Context(), chainID, actor)
	if err != nil {
		h.logger.WithError(err).WithField("chain_id", chainID).Warn("deposit view failed")
		respondWithError(c, http.StatusBadGateway, "view_failed", "failed to build deposit view", err.Error())
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetWithdraws GET /api/chains/:chainId/withdraws?actor=0x..
func (h *BridgeViewHandler) GetWithdraws(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}
	actor, ok := actorQuery(c)
	if !ok {
		return
	}

	view, err := h.views.WithdrawView(c.Request.Context(), chainID, actor)
	if err != nil {
		h.logger.WithError(err).WithField("chain_id", chainID).Warn("withdraw view failed")
		respondWithError(c, http.StatusBadGateway, "view_failed", "failed to build withdraw view", err.Error())
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetRegistry GET /api/chains/:chainId/registry
func (h *BridgeViewHandler) GetRegistry(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}

	view, err := h.views.RegistryView(c.Request.Context(), chainID)
	if err != nil {
		h.logger.WithError(err).WithField("chain_id", chainID).Warn("registry view failed")
		respondWithError(c, http.StatusBadGateway, "view_failed", "failed to read registry", err.Error())
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetTokenMetadata GET /api/chains/:chainId/tokens/:address
func (h *BridgeViewHandler) GetTokenMetadata(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}
	raw := c.Param("address")
	if !utils.IsEvmAddress(raw) {
		respondWithError(c, http.StatusBadRequest, "invalid_address", "address must be a 0x-prefixed 20-byte address", raw)
		return
	}
	token := common.HexToAddress(raw)

	meta, ok := h.meta.Resolve(c.Request.Context(), chainID, token)
	if !ok {
		respondWithError(c, http.StatusNotFound, "not_found", "no metadata source answered for token", gin.H{
			"chain_id": chainID,
			"token":    token.Hex(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chain_id": chainID,
		"token":    token,
		"metadata": meta,
	})
}
