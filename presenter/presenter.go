package presenter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omni/question-oracle/db"
	"github.com/omni/question-oracle/entity"
	"github.com/omni/question-oracle/logging"
	"github.com/omni/question-oracle/oracle"
	"github.com/omni/question-oracle/presenter/http/middleware"
	"github.com/omni/question-oracle/presenter/http/render"
)

const shutdownTimeout = 5 * time.Second

type StatusProvider interface {
	Status() oracle.Status
}

type Info struct {
	ChainID  string
	Contract common.Address
	Oracle   common.Address
}

// Presenter serves a read-only http API over the oracle state and the answers journal.
type Presenter struct {
	logger  logging.Logger
	answers entity.AnswersRepo
	status  StatusProvider
	info    Info
	root    chi.Router
}

func NewPresenter(logger logging.Logger, answers entity.AnswersRepo, status StatusProvider, info Info) *Presenter {
	p := &Presenter{
		logger:  logger,
		answers: answers,
		status:  status,
		info:    info,
		root:    chi.NewMux(),
	}
	p.root.Use(chimiddleware.Throttle(5))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)
	p.root.Get("/status", p.GetStatus)
	p.root.With(middleware.GetUserMiddleware, middleware.GetLimitMiddleware).Get("/answers/{user}", p.GetAnswersByUser)
	p.root.With(middleware.GetTxHashMiddleware).Get("/tx/{txHash}", p.GetAnswerByTxHash)
	return p
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

// Serve listens on addr until ctx is done.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.logger.WithError(err).Error("can't shutdown presenter service")
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (p *Presenter) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, &StatusResult{
		ChainID:  p.info.ChainID,
		Contract: p.info.Contract,
		Oracle:   p.info.Oracle,
		Status:   p.status.Status(),
	})
}

func (p *Presenter) GetAnswersByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.User(ctx)

	answers, err := p.answers.FindByUser(ctx, p.info.ChainID, user, middleware.Limit(ctx))
	if err != nil {
		render.Error(w, r, fmt.Errorf("failed to find answers for user: %w", err))
		return
	}

	res := make([]*AnswerInfo, len(answers))
	for i, answer := range answers {
		res[i] = answerToAnswerInfo(answer)
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetAnswerByTxHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txHash := middleware.TxHash(ctx)

	answer, err := p.answers.GetByTxHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = fmt.Errorf("answer transaction %s: %w", txHash, render.ErrNotFound)
		}
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, answerToAnswerInfo(answer))
}
