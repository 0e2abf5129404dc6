package metrics

import (
	"math"
	"sync"
	"testing"
)

func TestLatencyStats_Basic(t *testing.T) {
	s := NewLatencyStats()

	for i := 0; i < 100; i++ {
		s.Add(float64(i))
	}

	stats := s.Snapshot()
	if stats == nil {
		t.Fatal("expected non-nil stats")
	}
	if stats.Count != 100 {
		t.Errorf("expected count 100, got %d", stats.Count)
	}
	if stats.Min != 0 || stats.Max != 99 {
		t.Errorf("expected min 0 max 99, got %f %f", stats.Min, stats.Max)
	}
	if math.Abs(stats.Avg-49.5) > 0.1 {
		t.Errorf("expected avg ~49.5, got %f", stats.Avg)
	}
	if math.Abs(stats.P50-49.5) > 0.01 {
		t.Errorf("expected p50 49.5, got %f", stats.P50)
	}
	if math.Abs(stats.P99-98.01) > 0.01 {
		t.Errorf("expected p99 98.01, got %f", stats.P99)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	if stats := NewLatencyStats().Snapshot(); stats != nil {
		t.Errorf("expected nil stats before any sample, got %+v", stats)
	}
}

func TestLatencyStats_Buckets(t *testing.T) {
	s := NewLatencyStats()

	samples := map[float64]int{
		2:    4, // 0-10ms
		30:   3, // 10-50ms
		100:  2, // 50-250ms
		500:  1, // 250ms-1s
		1500: 5, // 1s+
	}
	for v, n := range samples {
		for i := 0; i < n; i++ {
			s.Add(v)
		}
	}

	stats := s.Snapshot()
	want := []struct {
		label string
		count int
	}{
		{"0-10ms", 4},
		{"10-50ms", 3},
		{"50-250ms", 2},
		{"250ms-1s", 1},
		{"1s+", 5},
	}
	if len(stats.Buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(stats.Buckets))
	}
	for i, w := range want {
		if stats.Buckets[i].Label != w.label || stats.Buckets[i].Count != w.count {
			t.Errorf("bucket %d = %+v, want %s=%d", i, stats.Buckets[i], w.label, w.count)
		}
	}
}

func TestLatencyStats_BucketBoundaries(t *testing.T) {
	tests := []struct {
		ms   float64
		want int
	}{
		{0, 0},
		{9.99, 0},
		{10, 1},
		{49.9, 1},
		{50, 2},
		{250, 3},
		{999, 3},
		{1000, 4},
		{60000, 4},
	}
	for _, tt := range tests {
		if got := bucketIndex(tt.ms); got != tt.want {
			t.Errorf("bucketIndex(%v) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestLatencyStats_ReservoirBounded(t *testing.T) {
	s := newLatencyStats(50)

	for i := 0; i < 1000; i++ {
		s.Add(float64(i))
	}

	if len(s.reservoir) != 50 {
		t.Errorf("reservoir grew to %d, want 50", len(s.reservoir))
	}
	stats := s.Snapshot()
	if stats.Count != 1000 || stats.Min != 0 || stats.Max != 999 {
		t.Errorf("exact aggregates lost: %+v", stats)
	}
}

func TestLatencyStats_Concurrent(t *testing.T) {
	s := NewLatencyStats()

	var wg sync.WaitGroup
	numGoroutines := 10
	samplesPerGoroutine := 1000

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < samplesPerGoroutine; j++ {
				s.Add(float64(id*100 + j%100))
			}
		}(i)
	}
	wg.Wait()

	if got := s.Count(); got != int64(numGoroutines*samplesPerGoroutine) {
		t.Errorf("expected count %d, got %d", numGoroutines*samplesPerGoroutine, got)
	}
}

func BenchmarkLatencyStats_Add(b *testing.B) {
	s := NewLatencyStats()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s.Add(float64(i % 1000))
	}
}
