package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/omni/question-oracle/presenter/http/render"
)

type ctxKey int

const (
	userCtxKey ctxKey = iota
	txHashCtxKey
	limitCtxKey
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	ErrInvalidAddress = errors.New("invalid address parameter")
	ErrInvalidTxHash  = errors.New("invalid transaction hash parameter")
	ErrInvalidLimit   = errors.New("invalid limit parameter")
)

func GetUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := chi.URLParam(r, "user")
		if !common.IsHexAddress(user) {
			render.BadRequest(w, r, fmt.Errorf("%q: %w", user, ErrInvalidAddress))
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey, common.HexToAddress(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetTxHashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := chi.URLParam(r, "txHash")
		if len(txHash) != 2+2*common.HashLength || txHash[:2] != "0x" {
			render.BadRequest(w, r, fmt.Errorf("%q: %w", txHash, ErrInvalidTxHash))
			return
		}

		ctx := context.WithValue(r.Context(), txHashCtxKey, common.HexToHash(txHash))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := uint64(DefaultLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			var err error
			limit, err = strconv.ParseUint(raw, 10, 64)
			if err != nil || limit == 0 || limit > MaxLimit {
				render.BadRequest(w, r, fmt.Errorf("limit should be in [1, %d]: %w", MaxLimit, ErrInvalidLimit))
				return
			}
		}

		ctx := context.WithValue(r.Context(), limitCtxKey, limit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func User(ctx context.Context) common.Address {
	user, _ := ctx.Value(userCtxKey).(common.Address)
	return user
}

func TxHash(ctx context.Context) common.Hash {
	txHash, _ := ctx.Value(txHashCtxKey).(common.Hash)
	return txHash
}

func Limit(ctx context.Context) uint64 {
	if limit, ok := ctx.Value(limitCtxKey).(uint64); ok {
		return limit
	}
	return DefaultLimit
}
