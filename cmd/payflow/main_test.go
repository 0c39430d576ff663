package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"payflow/pkg/config"
	"payflow/pkg/journal"
	journalmemory "payflow/pkg/journal/memory"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"
	"payflow/pkg/simulator"

	"github.com/spf13/cobra"
)

func setupSimulator(t *testing.T, config simulator.Config) {
	t.Helper()
	srv := httptest.NewServer(simulator.New(config).Handler())
	t.Cleanup(srv.Close)

	t.Chdir(t.TempDir())
	t.Setenv("PAYFLOW_GATEWAY_URL", srv.URL)
	t.Setenv("PAYFLOW_POLL_INTERVAL", "1ms")
	t.Setenv("PAYFLOW_JOURNAL", "memory")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func payArgs(phone string, extra ...string) []string {
	return append([]string{
		"--phone", phone,
		"--amount", "500",
		"--entity-id", "24",
		"--requester", "7",
	}, extra...)
}

func TestPay_Succeeds(t *testing.T) {
	setupSimulator(t, simulator.DefaultConfig())

	out, err := execute(payCmd(), payArgs("843330333")...)
	if err != nil {
		t.Fatalf("pay failed: %v\n%s", err, out)
	}
	for _, want := range []string{"input -> initiating", "awaiting_authorization -> succeeded", "poll 3: completed", "Transaction: TXN"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPay_JSON(t *testing.T) {
	setupSimulator(t, simulator.DefaultConfig())

	out, err := execute(payCmd(), payArgs("+258843330333", "--json")...)
	if err != nil {
		t.Fatalf("pay failed: %v\n%s", err, out)
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result["state"] != "succeeded" || result["idempotency_key"] == "" {
		t.Errorf("result = %v", result)
	}
	if ref, _ := result["account_reference"].(string); !strings.HasPrefix(ref, "APT-24-") {
		t.Errorf("account_reference = %v", result["account_reference"])
	}
}

func TestPay_Declined(t *testing.T) {
	config := simulator.DefaultConfig()
	config.DeclinedPhones = []string{"258843330333"}
	setupSimulator(t, config)

	_, err := execute(payCmd(), payArgs("843330333")...)
	if err == nil || err.Error() != "payment failed: Insufficient balance" {
		t.Errorf("pay error = %v", err)
	}
}

func TestPay_InvalidInput(t *testing.T) {
	setupSimulator(t, simulator.DefaultConfig())

	if _, err := execute(payCmd(), payArgs("12345")...); err == nil {
		t.Error("expected error for invalid phone")
	}

	args := payArgs("843330333")
	args[3] = "five hundred"
	if _, err := execute(payCmd(), args...); err == nil {
		t.Error("expected error for invalid amount")
	}
}

func TestStatus(t *testing.T) {
	setupSimulator(t, simulator.DefaultConfig())

	out, err := execute(payCmd(), payArgs("843330333", "--json")...)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}
	var result map[string]interface{}
	json.Unmarshal([]byte(out), &result)
	id, _ := result["transaction_id"].(string)

	out, err = execute(statusCmd(), id)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "Transaction "+id) || !strings.Contains(out, "completed") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := execute(statusCmd(), "TXN-missing"); err == nil {
		t.Error("expected error for unknown transaction")
	}
}

func TestAttemptJournal_MemoryBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Journal.Backend = config.JournalMemory
	a := &app{config: cfg, logger: logging.NewNoOpLogger()}

	rec, closeJournal, err := a.attemptJournal(context.Background(), metrics.NoOpCollector{})
	if err != nil {
		t.Fatalf("attemptJournal failed: %v", err)
	}
	if rec != nil {
		t.Errorf("recorder = %T, want nil for the memory backend", rec)
	}
	closeJournal()
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	a := &app{config: config.Default(), logger: logging.NewNoOpLogger()}
	store := journalmemory.New()

	rec, closeJournal := a.recorder(store, metrics.NoOpCollector{})
	if err := rec.Record(context.Background(), journal.Entry{TransactionID: "TXN1"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	closeJournal()

	if store.Len() != 1 {
		t.Errorf("store has %d entries after close, want 1", store.Len())
	}
}

func TestPay_HelpNamesPersistentJournal(t *testing.T) {
	long := payCmd().Long
	if !strings.Contains(long, "PAYFLOW_JOURNAL=redis or postgres") || !strings.Contains(long, "memory backend") {
		t.Errorf("help text does not qualify reconcile by backend:\n%s", long)
	}
}
