package server

import (
	"errors"
	"net/http"

	"veilswap/internal/order"
	"veilswap/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type placeOrderRequest struct {
	Side   string          `json:"side" binding:"required"`
	Asset  string          `json:"asset" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orderSvc.PlaceOrder(c.Request.Context(), order.PlaceOrderParams{
		WalletId: c.GetString("wallet_id"),
		Side:     req.Side,
		Asset:    req.Asset,
		Amount:   req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) getOrder(c *gin.Context) {
	status, err := s.orderSvc.GetOrderStatus(c.Request.Context(), c.GetString("wallet_id"), c.Param("ref"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getBalance(c *gin.Context) {
	walletId := c.GetString("wallet_id")
	balance, err := s.dbService.GetBalance(c.Request.Context(), walletId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet_id": walletId, "balance": balance})
}

func (s *Server) listHoldings(c *gin.Context) {
	holdings, err := s.dbService.ListHoldings(c.Request.Context(), c.GetString("wallet_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holdings": holdings})
}

type depositRequest struct {
	Asset  string          `json:"asset" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (s *Server) initiateDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orderSvc.InitiateDeposit(c.Request.Context(), c.GetString("wallet_id"), req.Asset, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

type withdrawalRequest struct {
	Asset       string          `json:"asset" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Destination string          `json:"destination" binding:"required"`
}

func (s *Server) initiateWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orderSvc.InitiateWithdrawal(c.Request.Context(),
		c.GetString("wallet_id"), req.Asset, req.Amount, req.Destination)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) getOperation(c *gin.Context) {
	status, err := s.orderSvc.GetOperationStatus(c.Request.Context(), c.GetString("wallet_id"), c.Param("ref"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// writeError maps engine errors to HTTP statuses. Sentinel errors translate
// to client errors; everything else is a 500 with the detail kept out of the
// response body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient funds"})
	case errors.Is(err, store.ErrDuplicatePendingOrder):
		c.JSON(http.StatusConflict, gin.H{"error": "a pending order of this kind already exists"})
	case errors.Is(err, store.ErrWalletNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, order.ErrUnknownAsset), errors.Is(err, order.ErrInvalidAmount), errors.Is(err, order.ErrInvalidSide):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrQuoteUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "quote unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
