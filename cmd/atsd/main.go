package main

import (
	"errors"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/params"
	"github.com/atsx/atsd/pkg/api"
	"github.com/atsx/atsd/pkg/bank"
	"github.com/atsx/atsd/pkg/exchange"
	"github.com/atsx/atsd/pkg/fixed"
	"github.com/atsx/atsd/pkg/oracle"
	"github.com/atsx/atsd/pkg/store"
	"github.com/atsx/atsd/pkg/util"

	"go.uber.org/zap"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	kv, err := store.OpenPebble(cfg.Node.DataDir)
	if err != nil {
		logger.Fatal("open store failed", zap.String("dir", cfg.Node.DataDir), zap.Error(err))
	}
	defer kv.Close()

	ledger := bank.New(kv)
	attrs := oracle.New(kv)

	if !common.IsHexAddress(cfg.Node.ExchangeAddr) {
		logger.Fatal("invalid exchange address", zap.String("addr", cfg.Node.ExchangeAddr))
	}
	escrow := common.HexToAddress(cfg.Node.ExchangeAddr)

	app := exchange.New(kv, ledger, attrs, escrow, logger)

	// Bootstrap the contract on first start; an existing store wins over
	// config changes.
	if _, err := app.GetContractInfo(); err != nil {
		if !errors.Is(err, exchange.ErrNotFound) {
			logger.Fatal("read contract info failed", zap.Error(err))
		}
		info, err := contractFromConfig(cfg.Contract)
		if err != nil {
			logger.Fatal("invalid contract config", zap.Error(err))
		}
		if err := app.Instantiate(info); err != nil {
			logger.Fatal("instantiate failed", zap.Error(err))
		}
		logger.Info("contract instantiated",
			zap.String("name", info.Name),
			zap.String("base_denom", info.BaseDenom))
	}

	server := api.NewServer(app, ledger, logger)
	if err := server.Start(cfg.Node.ListenAddr); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
}

func contractFromConfig(c params.Contract) (exchange.ContractInfo, error) {
	executors, err := parseAddresses(c.Executors)
	if err != nil {
		return exchange.ContractInfo{}, err
	}
	approvers, err := parseAddresses(c.Approvers)
	if err != nil {
		return exchange.ContractInfo{}, err
	}

	return exchange.ContractInfo{
		Name:                  c.Name,
		BaseDenom:             c.BaseDenom,
		ConvertibleBaseDenoms: c.ConvertibleBaseDenoms,
		SupportedQuoteDenoms:  c.SupportedQuoteDenoms,
		Executors:             executors,
		Approvers:             approvers,
		AskRequiredAttributes: c.AskRequiredAttributes,
		BidRequiredAttributes: c.BidRequiredAttributes,
		PricePrecision:        c.PricePrecision,
		SizeIncrement:         fixed.NewInt(c.SizeIncrement),
	}, nil
}

func parseAddresses(hexes []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		if !common.IsHexAddress(h) {
			return nil, errors.New("invalid address: " + h)
		}
		out = append(out, common.HexToAddress(h))
	}
	return out, nil
}
