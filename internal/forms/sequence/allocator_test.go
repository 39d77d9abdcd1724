package sequence

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/testutil"
)

// TestAllocatorNumberFormat tests the PREFIX-YYYYMM-NNNNN format and monotonic values
func TestAllocatorNumberFormat(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alloc := NewAllocator(repository.NewCounterRepository(db), "REQ")

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	first, err := alloc.Next(context.Background(), now)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first != "REQ-202405-00001" {
		t.Fatalf("expected REQ-202405-00001, got %s", first)
	}

	second, err := alloc.Next(context.Background(), now)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second != "REQ-202405-00002" {
		t.Fatalf("expected REQ-202405-00002, got %s", second)
	}

	// New period restarts from 1
	nextMonth, err := alloc.Next(context.Background(), now.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if nextMonth != "REQ-202406-00001" {
		t.Fatalf("expected REQ-202406-00001, got %s", nextMonth)
	}
}

// TestAllocatorConcurrentUniqueness tests that concurrent allocations in the
// same period never produce duplicate numbers
func TestAllocatorConcurrentUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alloc := NewAllocator(repository.NewCounterRepository(db), "")

	const workers = 20
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	results := make(chan string, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := alloc.Next(context.Background(), now)
			if err != nil {
				errs <- err
				return
			}
			results <- number
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("allocation failed: %v", err)
	}

	pattern := regexp.MustCompile(`^SUB-202405-\d{5}$`)
	seen := make(map[string]bool)
	for number := range results {
		if !pattern.MatchString(number) {
			t.Fatalf("unexpected number format: %s", number)
		}
		if seen[number] {
			t.Fatalf("duplicate number allocated: %s", number)
		}
		seen[number] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d distinct numbers, got %d", workers, len(seen))
	}
}

// TestPeriod tests period derivation from time
func TestPeriod(t *testing.T) {
	got := Period(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if got != "202601" {
		t.Fatalf("expected 202601, got %s", got)
	}
}
