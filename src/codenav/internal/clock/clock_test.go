package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, New())
}

func TestNowAndSince(t *testing.T) {
	c := New()
	start := c.Now()
	assert.GreaterOrEqual(t, c.Since(start), time.Duration(0))
}

func TestAfter(t *testing.T) {
	select {
	case <-New().After(time.Microsecond):
	case <-time.After(time.Second):
		t.Fatal("After did not fire")
	}
}
