package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"payflow/pkg/simulator"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a local M-Pesa payment service simulator",
		Long: `Serve the payment service endpoints with simulated payers. Every payment
is authorized after a few status queries unless its phone number is listed
as declined, cancelled or silent.`,
		RunE: runSimulate,
	}

	cmd.Flags().String("addr", "", "Listen address (default: PAYFLOW_SIMULATOR_ADDR)")
	cmd.Flags().String("prefix", "/api/v1", "Path prefix of the payment endpoints")
	cmd.Flags().Int("authorize-after", 3, "Status queries before a payment settles")
	cmd.Flags().Duration("expires-in", 5*time.Minute, "Time the payer has to confirm")
	cmd.Flags().String("fee-rate", "0", "Fee rate applied to completed payments")
	cmd.Flags().StringSlice("declined", nil, "Phones declined with insufficient balance")
	cmd.Flags().StringSlice("cancelled", nil, "Phones that cancel the prompt")
	cmd.Flags().StringSlice("silent", nil, "Phones that never answer the prompt")

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	config := simulator.DefaultConfig()
	config.Limits = a.config.Limits
	config.AuthorizeAfter, _ = cmd.Flags().GetInt("authorize-after")
	config.ExpiresIn, _ = cmd.Flags().GetDuration("expires-in")
	config.DeclinedPhones, _ = cmd.Flags().GetStringSlice("declined")
	config.CancelledPhones, _ = cmd.Flags().GetStringSlice("cancelled")
	config.SilentPhones, _ = cmd.Flags().GetStringSlice("silent")

	rate, _ := cmd.Flags().GetString("fee-rate")
	if config.FeeRate, err = decimal.NewFromString(rate); err != nil {
		return fmt.Errorf("invalid fee rate %q", rate)
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.config.SimulatorAddress
	}
	prefix, _ := cmd.Flags().GetString("prefix")
	prefix = "/" + strings.Trim(prefix, "/")

	router := mux.NewRouter()
	handler := simulator.New(config).Handler()
	if prefix == "/" {
		router.PathPrefix("/").Handler(handler)
	} else {
		router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	a.logger.Info("simulator listening",
		zap.String("address", addr),
		zap.String("prefix", prefix),
		zap.Int("authorize_after", config.AuthorizeAfter))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
