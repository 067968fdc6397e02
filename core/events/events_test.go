package events

import (
	"testing"
	"time"

	"payguard/core/types"
)

func TestPolicyEvaluatedEvent(t *testing.T) {
	evt := PolicyEvaluated{
		IntentID:    "intent-1",
		UserID:      "user_1",
		MerchantVPA: "shop@upi",
		Decision:    types.DecisionDeny,
		RiskScore:   1.0,
		Violations:  2,
		Reason:      "Critical security violation: Merchant is BLOCKED due to fraud risk.",
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypePolicyEvaluated {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["decision"] != "DENY" {
		t.Fatalf("unexpected decision attr: %s", evt.Attributes["decision"])
	}
	if evt.Attributes["riskScore"] != "1.0000" {
		t.Fatalf("unexpected risk score attr: %s", evt.Attributes["riskScore"])
	}
	if evt.Attributes["violations"] != "2" {
		t.Fatalf("unexpected violations attr: %s", evt.Attributes["violations"])
	}
}

func TestTransactionCreatedEventRequiresID(t *testing.T) {
	if evt := (TransactionCreated{State: types.TxStateApproved}).Event(); evt != nil {
		t.Fatalf("expected nil event without transaction id")
	}
	evt := TransactionCreated{
		TransactionID: "txn-1",
		IntentID:      "intent-1",
		UserID:        "user_1",
		MerchantVPA:   "shop@upi",
		Amount:        "150",
		State:         types.TxStateApproved,
		ApprovalHash:  "abcd",
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Attributes["transactionId"] != "txn-1" || evt.Attributes["state"] != "APPROVED" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestExecutionEvents(t *testing.T) {
	started := ExecutionStarted{TransactionID: "txn-1", UserID: "user_1", Amount: "150"}.Event()
	if started == nil || started.Type != TypeExecutionStarted {
		t.Fatalf("unexpected started event: %+v", started)
	}

	at := time.Unix(1700000000, 0).UTC()
	completed := ExecutionCompleted{
		TransactionID: "txn-1",
		SettlementRef: "UPI1234567890AB",
		ExecutionHash: "ffff",
		Amount:        "150",
		ExecutedAt:    at,
	}.Event()
	if completed == nil || completed.Type != TypeExecutionCompleted {
		t.Fatalf("unexpected completed event: %+v", completed)
	}
	if completed.Attributes["executedAtUnix"] != "1700000000" {
		t.Fatalf("unexpected executedAtUnix: %s", completed.Attributes["executedAtUnix"])
	}

	failed := ExecutionFailed{TransactionID: "txn-1", Code: "NETWORK_ERROR", Reason: "simulated network failure"}.Event()
	if failed == nil || failed.Attributes["code"] != "NETWORK_ERROR" {
		t.Fatalf("unexpected failed event: %+v", failed)
	}
}

func TestRiskStateChangedEvent(t *testing.T) {
	if evt := (RiskStateChanged{From: types.RiskStateNew, To: types.RiskStateTrusted}).Event(); evt != nil {
		t.Fatalf("expected nil event without merchant")
	}
	evt := RiskStateChanged{
		MerchantVPA: "shop@upi",
		From:        types.RiskStateTrusted,
		To:          types.RiskStateWatchlist,
		Reason:      "refund rate 0.25 above 0.20",
	}.Event()
	if evt == nil || evt.Type != TypeRiskStateChanged {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Attributes["from"] != "TRUSTED" || evt.Attributes["to"] != "WATCHLIST" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestImpersonationFlaggedEvent(t *testing.T) {
	evt := ImpersonationFlagged{MerchantVPA: "amaz0n@upi", Brand: "amazon"}.Event()
	if evt == nil || evt.Type != TypeImpersonationFlagged {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Attributes["brand"] != "amazon" {
		t.Fatalf("unexpected brand attr: %s", evt.Attributes["brand"])
	}
}
