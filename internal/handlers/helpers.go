package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/services"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// respondWithError unified error response
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// chainIDParam parses :chainId, answering 400 itself on failure
func chainIDParam(c *gin.Context) (uint64, bool) {
	raw := c.Param("chainId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondWithError(c, http.StatusBadRequest, "invalid_chain_id", "chainId must be a positive integer", raw)
		return 0, false
	}
	return id, true
}

// hashParam parses a bytes32 path parameter
func hashParam(c *gin.Context, name string) (common.Hash, bool) {
	raw := c.Param(name)
	if !utils.IsBytes32Hex(raw) {
		respondWithError(c, http.StatusBadRequest, "invalid_hash", name+" must be a 0x-prefixed 32-byte hex string", raw)
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

// actorQuery the optional ?actor= address; absent yields nil
func actorQuery(c *gin.Context) (*common.Address, bool) {
	raw := strings.TrimSpace(c.Query("actor"))
	if raw == "" {
		return nil, true
	}
	if !utils.IsEvmAddress(raw) {
		respondWithError(c, http.StatusBadRequest, "invalid_actor", "actor must be a 0x-prefixed 20-byte address", raw)
		return nil, false
	}
	addr := common.HexToAddress(raw)
	return &addr, true
}

// parseChainList "97,5611" -> ids; blanks are skipped
func parseChainList(raw string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// respondWithActionError maps action failures onto HTTP status codes
func respondWithActionError(c *gin.Context, err error) {
	status, errType := http.StatusBadGateway, "action_failed"
	switch {
	case errors.Is(err, services.ErrChainUnavailable), errors.Is(err, clients.ErrNoSigner):
		status, errType = http.StatusServiceUnavailable, "chain_unavailable"
	case errors.Is(err, services.ErrBridgeNotConfigured), errors.Is(err, services.ErrRecordNotFound):
		status, errType = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrNotActionable):
		status, errType = http.StatusConflict, "not_actionable"
	case errors.Is(err, services.ErrUserRejected):
		status, errType = http.StatusConflict, "user_rejected"
	case errors.Is(err, services.ErrUndecodableRecord):
		status, errType = http.StatusUnprocessableEntity, "undecodable_record"
	}

	var ae *services.ActionError
	if errors.As(err, &ae) {
		respondWithError(c, status, errType, ae.Reason, gin.H{"op": ae.Op, "chain_id": ae.ChainID})
		return
	}
	respondWithError(c, status, errType, err.Error(), nil)
}
