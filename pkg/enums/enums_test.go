package enums

import "testing"

func TestIntentStatusTerminal(t *testing.T) {
	cases := map[IntentStatus]bool{
		IntentStatusCreated:   false,
		IntentStatusPending:   false,
		IntentStatusSucceeded: true,
		IntentStatusFailed:    true,
		IntentStatusCancelled: true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestDisputeStatusActive(t *testing.T) {
	if !DisputeOpen.IsActive() || !DisputeUnderReview.IsActive() {
		t.Fatal("open and under_review disputes are active")
	}
	for _, s := range []DisputeStatus{DisputeResolvedRefund, DisputeResolvedRelease, DisputeClosed} {
		if s.IsActive() {
			t.Fatalf("%s should not be active", s)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := ParseDeliveryMethod("drone"); err == nil {
		t.Fatal("expected unknown delivery method to fail")
	}
	got, err := ParsePaymentProvider("ozow")
	if err != nil || got != ProviderOzow {
		t.Fatalf("expected ozow, got %q err=%v", got, err)
	}
}

func TestPaymentMethodProvider(t *testing.T) {
	if _, ok := PaymentMethodWallet.Provider(); ok {
		t.Fatal("wallet payments have no external provider")
	}
	if p, ok := PaymentMethodPeach.Provider(); !ok || p != ProviderPeach {
		t.Fatalf("expected peach provider, got %q", p)
	}
}
