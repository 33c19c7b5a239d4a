package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockClientDeterministic(t *testing.T) {
	client := NewMockClient(16, 100)

	first, err := client.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	second, err := client.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(first) != 16 {
		t.Fatalf("unexpected dimension: %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, first[i], second[i])
		}
	}

	other, err := client.Embed(context.Background(), "different text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different inputs should embed differently")
	}
}

func TestMockClientUnitNorm(t *testing.T) {
	client := NewMockClient(32, 100)

	vec, err := client.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-3 {
		t.Fatalf("vector not unit length: %f", sum)
	}
}

func TestMockClientCancelledContext(t *testing.T) {
	client := NewMockClient(8, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Embed(ctx, "text"); err == nil {
		t.Fatal("expected context error")
	}
}
