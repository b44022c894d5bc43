package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/omni/question-oracle/checkpoint"
	"github.com/omni/question-oracle/entity"
	"github.com/omni/question-oracle/logging"
	"github.com/omni/question-oracle/utils"
)

// ErrCycleInProgress is returned by RunCycle when another cycle has not finished yet.
var ErrCycleInProgress = errors.New("oracle cycle is already in progress")

const (
	defaultPollInterval        = 30 * time.Second
	defaultResubscribeInterval = 10 * time.Second
)

type EventSource interface {
	FetchSince(ctx context.Context, from uint64) ([]*entity.Question, uint64, error)
	FetchRange(ctx context.Context, from, to uint64) ([]*entity.Question, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, notify func(*entity.Question)) error
}

type AnswerProvider interface {
	Answer(ctx context.Context, question string) (string, error)
}

type TransactionSubmitter interface {
	Submit(ctx context.Context, user common.Address, answer string) (*types.Transaction, error)
}

// ResponseReader returns the answer currently stored on chain for the user.
type ResponseReader interface {
	UserResponse(ctx context.Context, user common.Address) (string, error)
}

type Config struct {
	ChainID      string
	Contract     common.Address
	PollInterval time.Duration
	// Subscriber wakes the loop up before the poll interval elapses, optional.
	Subscriber Subscriber
	// Journal records submitted answers, optional.
	Journal entity.AnswersRepo
	// Responses makes ProcessRange skip users that already have an answer on chain, optional.
	Responses ResponseReader
}

// Oracle answers questions emitted by the contract, one cycle at a time.
type Oracle struct {
	logger    logging.Logger
	store     checkpoint.Store
	source    EventSource
	answerer  AnswerProvider
	submitter TransactionSubmitter
	cfg       Config
	wake      chan struct{}

	cycleMu sync.Mutex

	statusMu sync.RWMutex
	status   Status

	headBlockMetric      prometheus.Gauge
	processedBlockMetric prometheus.Gauge
	cycleDurationMetric  prometheus.Observer
	questionsMetric      *prometheus.CounterVec
	cyclesMetric         *prometheus.CounterVec
}

func NewOracle(logger logging.Logger, store checkpoint.Store, source EventSource, answerer AnswerProvider, submitter TransactionSubmitter, cfg Config) *Oracle {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	commonLabels := prometheus.Labels{
		"chain_id": cfg.ChainID,
		"address":  cfg.Contract.String(),
	}
	return &Oracle{
		logger: logger.WithFields(logrus.Fields{
			"chain_id": cfg.ChainID,
			"contract": cfg.Contract,
		}),
		store:                checkpoint.NewMonotonic(store),
		source:               source,
		answerer:             answerer,
		submitter:            submitter,
		cfg:                  cfg,
		wake:                 make(chan struct{}, 1),
		headBlockMetric:      LatestHeadBlock.With(commonLabels),
		processedBlockMetric: LatestProcessedBlock.With(commonLabels),
		cycleDurationMetric:  CycleDurations.With(commonLabels),
		questionsMetric:      ProcessedQuestions.MustCurryWith(commonLabels),
		cyclesMetric:         CycleResults.MustCurryWith(commonLabels),
	}
}

// Init loads the checkpoint, resetting a corrupted one, and moves it right
// before startBlock when scanning would otherwise begin earlier.
func (o *Oracle) Init(ctx context.Context, startBlock uint64) (uint64, error) {
	height, err := checkpoint.LoadOrReset(ctx, o.store, o.logger)
	if err != nil {
		return 0, err
	}
	if startBlock > 0 && height < startBlock-1 {
		o.logger.WithFields(logrus.Fields{
			"checkpoint":  height,
			"start_block": startBlock,
		}).Warn("checkpoint is behind the start block, skipping earlier blocks")
		height = startBlock - 1
		if err = o.store.Save(ctx, height); err != nil {
			return 0, err
		}
	}
	o.processedBlockMetric.Set(float64(height))
	o.updateStatus(func(s *Status) {
		s.Checkpoint = height
	})
	o.logger.WithField("checkpoint", height).Info("loaded checkpoint")
	return height, nil
}

func (o *Oracle) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

func (o *Oracle) updateStatus(f func(s *Status)) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	f(&o.status)
}

// Wake makes a waiting loop start the next cycle immediately.
func (o *Oracle) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Start runs cycles until ctx is done. Cancellation is observed only between
// cycles, a cycle in flight always runs to completion.
func (o *Oracle) Start(ctx context.Context) {
	o.logger.WithField("poll_interval", o.cfg.PollInterval).Info("starting oracle loop")
	if o.cfg.Subscriber != nil {
		go o.watch(ctx)
	}
	cycleCtx := context.WithoutCancel(ctx)
	for {
		_, err := o.RunCycle(cycleCtx)
		if err != nil {
			o.logger.WithError(err).Error("oracle cycle failed, will retry on next tick")
		}
		if !utils.ContextWait(ctx, o.cfg.PollInterval, o.wake) {
			o.logger.Info("oracle loop stopped")
			return
		}
	}
}

func (o *Oracle) watch(ctx context.Context) {
	for {
		err := o.cfg.Subscriber.Subscribe(ctx, func(q *entity.Question) {
			o.logger.WithFields(logrus.Fields{
				"block_number": q.BlockNumber,
				"user":         q.User,
			}).Debug("received live question, waking up")
			o.Wake()
		})
		if ctx.Err() != nil {
			return
		}
		o.logger.WithError(err).Warn("live questions subscription failed, resubscribing later")
		if utils.ContextSleep(ctx, defaultResubscribeInterval) == nil {
			return
		}
	}
}

// RunCycle processes all questions emitted after the checkpoint. Questions
// are handled strictly in order, and the first failure stops the cycle. The
// checkpoint is never moved past a question that was not answered.
func (o *Oracle) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !o.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer o.cycleMu.Unlock()

	o.updateStatus(func(s *Status) {
		s.State = StateProcessing
	})
	start := time.Now()
	res, err := o.runCycle(ctx)
	o.cycleDurationMetric.Observe(time.Since(start).Seconds())
	if err != nil {
		o.cyclesMetric.WithLabelValues("error").Inc()
	} else {
		o.cyclesMetric.WithLabelValues("ok").Inc()
	}
	o.updateStatus(func(s *Status) {
		s.State = StateIdle
		s.Cycles++
		s.LastCycleAt = start
		s.LastError = ""
		if err != nil {
			s.LastError = err.Error()
		}
		if res != nil {
			s.Checkpoint = res.Checkpoint
			s.Answered += uint64(res.Processed)
			if res.Latest > s.LatestBlock {
				s.LatestBlock = res.Latest
			}
		}
	})
	return res, err
}

func (o *Oracle) runCycle(ctx context.Context) (*CycleResult, error) {
	from, err := o.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't load checkpoint: %w", err)
	}
	res := &CycleResult{From: from, Checkpoint: from}

	questions, latest, err := o.source.FetchSince(ctx, from)
	if err != nil {
		return res, fmt.Errorf("can't fetch questions after block %d: %w", from, err)
	}
	res.Latest = latest
	o.headBlockMetric.Set(float64(latest))
	if latest <= from {
		o.logger.WithFields(logrus.Fields{
			"checkpoint":   from,
			"latest_block": latest,
		}).Debug("no new blocks since last check")
		return res, nil
	}
	res.Fetched = len(questions)
	o.logger.WithFields(logrus.Fields{
		"count":      len(questions),
		"from_block": from + 1,
		"to_block":   latest,
	}).Info("fetched new questions")

	next := latest
	var procErr error
	for i, q := range questions {
		if procErr = o.process(ctx, q); procErr != nil {
			next = safeCheckpoint(from, questions[:i], q)
			break
		}
		res.Processed++
	}

	if next > from {
		if err = o.store.Save(ctx, next); err != nil {
			return res, fmt.Errorf("can't save checkpoint %d: %w", next, err)
		}
		res.Checkpoint = next
		o.processedBlockMetric.Set(float64(next))
		o.logger.WithField("checkpoint", next).Info("advanced checkpoint")
	}
	return res, procErr
}

// ProcessRange answers all questions in [from, to] without reading or moving
// the checkpoint. Processing stops at the first failure. With Responses set,
// questions of users holding a non-empty on-chain answer are skipped.
func (o *Oracle) ProcessRange(ctx context.Context, from, to uint64) (*CycleResult, error) {
	if !o.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer o.cycleMu.Unlock()

	questions, err := o.source.FetchRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("can't fetch questions in range [%d, %d]: %w", from, to, err)
	}
	res := &CycleResult{Latest: to, Fetched: len(questions)}
	o.logger.WithFields(logrus.Fields{
		"count":      len(questions),
		"from_block": from,
		"to_block":   to,
	}).Info("reprocessing questions in range")
	for _, q := range questions {
		answered, err := o.hasResponse(ctx, q)
		if err != nil {
			return res, err
		}
		if answered {
			res.Skipped++
			continue
		}
		if err = o.process(ctx, q); err != nil {
			return res, err
		}
		res.Processed++
	}
	return res, nil
}

func (o *Oracle) hasResponse(ctx context.Context, q *entity.Question) (bool, error) {
	if o.cfg.Responses == nil {
		return false, nil
	}
	resp, err := o.cfg.Responses.UserResponse(ctx, q.User)
	if err != nil {
		return false, fmt.Errorf("can't check on-chain answer of %s: %w", q.User, err)
	}
	if resp == "" {
		return false, nil
	}
	o.logger.WithFields(logrus.Fields{
		"block_number": q.BlockNumber,
		"log_index":    q.LogIndex,
		"user":         q.User,
	}).Info("user already has an answer on chain, skipping question")
	return true, nil
}

// safeCheckpoint returns the highest block whose questions were all answered,
// given the answered prefix of the cycle and the question that failed.
func safeCheckpoint(from uint64, done []*entity.Question, failed *entity.Question) uint64 {
	if len(done) == 0 {
		return from
	}
	last := done[len(done)-1].BlockNumber
	if last == failed.BlockNumber {
		last--
	}
	if last < from {
		return from
	}
	return last
}

func (o *Oracle) process(ctx context.Context, q *entity.Question) error {
	logger := o.logger.WithFields(logrus.Fields{
		"block_number": q.BlockNumber,
		"log_index":    q.LogIndex,
		"tx_hash":      q.TransactionHash,
		"user":         q.User,
	})
	logger.WithField("question", q.Text).Info("answering question")

	answer, err := o.answerer.Answer(ctx, q.Text)
	if err != nil {
		o.observe("generation_failed")
		return fmt.Errorf("can't answer question %s: %w", q.Key(), err)
	}
	tx, err := o.submitter.Submit(ctx, q.User, answer)
	if err != nil {
		o.observe("submission_failed")
		return fmt.Errorf("can't submit answer for question %s: %w", q.Key(), err)
	}
	o.observe("answered")
	logger.WithFields(logrus.Fields{
		"answer_tx_hash": tx.Hash(),
		"nonce":          tx.Nonce(),
	}).Info("submitted answer")

	o.record(ctx, logger, q, answer, tx)
	return nil
}

func (o *Oracle) observe(status string) {
	o.questionsMetric.WithLabelValues(status).Inc()
}

// record stores the answer in the journal, failures never fail the question.
func (o *Oracle) record(ctx context.Context, logger logging.Logger, q *entity.Question, answer string, tx *types.Transaction) {
	if o.cfg.Journal == nil {
		return
	}
	err := o.cfg.Journal.Ensure(ctx, &entity.Answer{
		ChainID:                 q.ChainID,
		Contract:                q.Contract,
		BlockNumber:             q.BlockNumber,
		LogIndex:                q.LogIndex,
		QuestionTransactionHash: q.TransactionHash,
		User:                    q.User,
		Question:                q.Text,
		Answer:                  answer,
		TransactionHash:         tx.Hash(),
		Nonce:                   tx.Nonce(),
	})
	if err != nil {
		logger.WithError(err).Error("can't record answer in journal")
	}
}
