// SPDX-License-Identifier: MPL-2.0

package clock

import (
	"testing"
	"time"
)

func TestReal_After(t *testing.T) {
	t.Parallel()

	select {
	case <-Real{}.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Error("Real.After() did not fire within 1s")
	}
}

func TestFake_DefaultTime(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Time{})
	if want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestFake_AfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Time{})
	ch := c.After(2 * time.Second)
	if c.Waiters() != 1 {
		t.Fatalf("Waiters() = %d, want 1", c.Waiters())
	}

	c.Advance(time.Second)
	select {
	case <-ch:
		t.Fatal("After() fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(c.Now()) {
			t.Errorf("fired with %v, want %v", got, c.Now())
		}
	default:
		t.Fatal("After() did not fire at its deadline")
	}
	if c.Waiters() != 0 {
		t.Errorf("Waiters() = %d after firing, want 0", c.Waiters())
	}
}

func TestFake_AfterNonPositive(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Time{})
	select {
	case <-c.After(0):
	default:
		t.Error("After(0) should fire immediately")
	}
}

func TestFake_Set(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Time{})
	ch := c.After(time.Hour)
	c.Set(c.Now().Add(2 * time.Hour))
	select {
	case <-ch:
	default:
		t.Error("Set() past the deadline should fire the waiter")
	}
}
