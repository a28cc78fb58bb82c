package httpx

import (
	"testing"
	"time"
)

func TestNewClientTimeout(t *testing.T) {
	c := NewClient(0)
	if c == nil {
		t.Fatal("client must not be nil")
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("NewClient(0) timeout = %s, want %s", c.Timeout, DefaultTimeout)
	}

	c = NewClient(120)
	if c.Timeout != 120*time.Second {
		t.Fatalf("NewClient(120) timeout = %s, want %s", c.Timeout, 120*time.Second)
	}
}

func TestTimeoutIgnoresNegative(t *testing.T) {
	if got := Timeout(-3); got != DefaultTimeout {
		t.Fatalf("Timeout(-3) = %s, want %s", got, DefaultTimeout)
	}
}
