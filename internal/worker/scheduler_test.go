package worker

import (
	"context"
	"testing"
	"time"
)

func TestUntilNextUTC8MidnightIsWithinADay(t *testing.T) {
	d := untilNextUTC8Midnight()
	if d <= 0 || d > 24*time.Hour {
		t.Errorf("untilNextUTC8Midnight() = %s, want (0, 24h]", d)
	}
}

func TestUntilNextUTC8At3AMIsWithinADay(t *testing.T) {
	d := untilNextUTC8At3AM()
	if d <= 0 || d > 24*time.Hour {
		t.Errorf("untilNextUTC8At3AM() = %s, want (0, 24h]", d)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := jitter(200, 1000)
		if d < 200*time.Millisecond || d > 1000*time.Millisecond {
			t.Fatalf("jitter(200, 1000) = %s, out of bounds", d)
		}
	}
}

func TestSleepOrStopReturnsFalseWhenStopped(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	if ok := sleepOrStop(context.Background(), stop, time.Hour); ok {
		t.Error("sleepOrStop should return false once stop is closed")
	}
}
