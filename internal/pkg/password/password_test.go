package password

import "testing"

func TestHashWithCostRoundTrip(t *testing.T) {
	hash, err := HashWithCost("s3cret-value", 4)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !Verify("s3cret-value", hash) {
		t.Fatal("expected hash to verify")
	}
	if Verify("other", hash) {
		t.Fatal("expected mismatch for different input")
	}
}
