package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryServiceSetGetDelete(t *testing.T) {
	svc := NewMemoryService()

	err := svc.Set("test_key", []byte("test_value"), time.Minute)
	assert.NoError(t, err)

	value, err := svc.Get("test_key")
	assert.NoError(t, err)
	assert.Equal(t, "test_value", string(value))

	err = svc.Delete("test_key")
	assert.NoError(t, err)

	_, err = svc.Get("test_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServiceExpiry(t *testing.T) {
	svc := NewMemoryService()

	err := svc.Set("short_lived", []byte("x"), 10*time.Millisecond)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = svc.Get("short_lived")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServiceZeroExpirationNeverExpires(t *testing.T) {
	svc := NewMemoryService()

	err := svc.Set("pinned", []byte("y"), 0)
	assert.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	value, err := svc.Get("pinned")
	assert.NoError(t, err)
	assert.Equal(t, "y", string(value))
}

func TestMemoryServiceCopiesValue(t *testing.T) {
	svc := NewMemoryService()

	buf := []byte("original")
	_ = svc.Set("k", buf, time.Minute)
	buf[0] = 'X'

	value, err := svc.Get("k")
	assert.NoError(t, err)
	assert.Equal(t, "original", string(value))
}
