package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/omni/question-oracle/config"
	"github.com/omni/question-oracle/contract"
	"github.com/omni/question-oracle/db"
	"github.com/omni/question-oracle/logging"
	"github.com/omni/question-oracle/oracle"
	"github.com/omni/question-oracle/repository"
)

var (
	fromBlock    = flag.Uint64("fromBlock", 0, "starting block")
	toBlock      = flag.Uint64("toBlock", 0, "ending block")
	skipAnswered = flag.Bool("skipAnswered", false, "skip users that already have an answer on chain")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(config.Path())
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	if *fromBlock < cfg.Oracle.StartBlock {
		fromBlock = &cfg.Oracle.StartBlock
	}
	if *toBlock == 0 {
		logger.Fatal("toBlock is not specified")
	}
	if *toBlock < *fromBlock {
		logger.WithFields(logrus.Fields{
			"from_block": *fromBlock,
			"to_block":   *toBlock,
		}).Fatal("toBlock < fromBlock")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	oracleCfg := oracle.Config{
		Contract: cfg.Oracle.ContractAddress,
	}
	if cfg.Journal {
		dbConn, err2 := db.ConnectToDBAndMigrate(cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()
		oracleCfg.Journal = repository.NewRepo(dbConn).Answers
	}

	services, err := oracle.NewServices(ctx, logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize oracle services")
	}
	defer services.Close()
	oracleCfg.ChainID = services.Client.ChainID()
	if *skipAnswered {
		oracleCfg.Responses = contract.NewOracleContract(services.Client, cfg.Oracle.ContractAddress)
	}

	// ProcessRange never touches the checkpoint
	o := oracle.NewOracle(logger, nil, services.Source, services.Answerer, services.Submitter, oracleCfg)

	res, err := o.ProcessRange(ctx, *fromBlock, *toBlock)
	if err != nil {
		logger.WithError(err).Fatal("can't manually process block range")
	}
	logger.WithFields(logrus.Fields{
		"from_block": *fromBlock,
		"to_block":   *toBlock,
		"answered":   res.Processed,
		"skipped":    res.Skipped,
	}).Info("reprocessed block range")
}
