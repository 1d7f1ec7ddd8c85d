package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/airtime"
	"github.com/Altech001/Merite-api/internal/api"
	"github.com/Altech001/Merite-api/internal/config"
	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/gateway"
	"github.com/Altech001/Merite-api/internal/invest"
	"github.com/Altech001/Merite-api/internal/loan"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/paylink"
	"github.com/Altech001/Merite-api/internal/store"
	"github.com/Altech001/Merite-api/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	st, err := store.NewPostgres(context.Background(), cfg.DBSource)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer st.Close()

	sink := notify.NewStoreSink(st, logger)
	gw := gateway.Select(cfg.Env, logger)

	walletSvc := wallet.New(st, sink, logger)
	loanSvc := loan.New(st, sink, logger)
	investSvc := invest.New(st, sink, logger)
	airtimeSvc := airtime.New(st, gw, sink, logger, cfg.GatewayTimeout)
	linkSvc := paylink.New(st, sink, logger)

	// Deposits and airtime sales re-score the credit limit in the same
	// unit of work; the hook keeps wallet free of a loan import.
	recalc := func(ctx context.Context, tx store.Tx, acct *domain.Account) error {
		_, err := loanSvc.RecalcTx(ctx, tx, acct)
		return err
	}
	walletSvc.SetLimitRecalc(recalc)
	airtimeSvc.SetLimitRecalc(recalc)

	handler := api.NewHandler(st, walletSvc, loanSvc, investSvc, airtimeSvc, linkSvc, logger)

	logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := http.ListenAndServe(":"+cfg.Port, handler.Router()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
