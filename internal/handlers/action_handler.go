package handlers

import (
	"context"
	"net/http"

	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ActionHandler operator endpoints. Routes are mounted behind operator auth.
type ActionHandler struct {
	actions   *services.ActionService
	views     *services.BridgeViewService
	scheduler *services.RefreshScheduler
	logger    *logrus.Entry
}

// NewActionHandler scheduler may be nil, in which case refresh only invalidates
func NewActionHandler(actions *services.ActionService, views *services.BridgeViewService, scheduler *services.RefreshScheduler, logger *logrus.Logger) *ActionHandler {
	return &ActionHandler{
		actions:   actions,
		views:     views,
		scheduler: scheduler,
		logger:    logger.WithField("component", "action_handler"),
	}
}

// ApproveWithdraw POST /api/chains/:chainId/deposits/:hash/approve
// chainId is the source chain holding the deposit.
func (h *ActionHandler) ApproveWithdraw(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}
	hash, ok := hashParam(c, "hash")
	if !ok {
		return
	}

	h.logger.WithFields(logrus.Fields{
		"chain_id": chainID,
		"hash":     hash.Hex(),
		"operator": c.GetString("operator"),
	}).Info("approveWithdraw requested")

	result, err := h.actions.ApproveWithdraw(c.Request.Context(), chainID, hash)
	if err != nil {
		respondWithActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// ExecuteWithdraw POST /api/chains/:chainId/withdraws/:hash/execute
func (h *ActionHandler) ExecuteWithdraw(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}
	hash, ok := hashParam(c, "hash")
	if !ok {
		return
	}

	h.logger.WithFields(logrus.Fields{
		"chain_id": chainID,
		"hash":     hash.Hex(),
		"operator": c.GetString("operator"),
	}).Info("withdraw execution requested")

	result, err := h.actions.ExecuteWithdraw(c.Request.Context(), chainID, hash)
	if err != nil {
		respondWithActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// RefreshChain POST /api/chains/:chainId/refresh
// Drops every cached key of the chain; with a scheduler the views are rebuilt
// in the background.
func (h *ActionHandler) RefreshChain(c *gin.Context) {
	chainID, ok := chainIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.views.Registry().Descriptor(chainID); !ok {
		respondWithError(c, http.StatusNotFound, "not_found", "chain is not configured", chainID)
		return
	}

	n := h.views.InvalidateChain(chainID)
	if h.scheduler != nil {
		for _, q := range []string{services.QueryDepositView, services.QueryWithdrawView, services.QueryRegistry} {
			go func(query string) {
				if err := h.scheduler.RunOnce(context.Background(), chainID, query); err != nil {
					h.logger.WithError(err).WithFields(logrus.Fields{"chain_id": chainID, "query": query}).Warn("manual refresh failed")
				}
			}(q)
		}
	}

	h.logger.WithFields(logrus.Fields{"chain_id": chainID, "invalidated": n}).Info("🔄 Chain refresh requested")
	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"chain_id":    chainID,
		"invalidated": n,
	})
}
