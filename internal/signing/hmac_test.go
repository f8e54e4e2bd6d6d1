package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"order_id":"ord_1"}`)
	sig := Sign("secret", payload, 1700000000)

	assert.True(t, Verify("secret", payload, 1700000000, sig))
	assert.False(t, Verify("other", payload, 1700000000, sig))
	assert.False(t, Verify("secret", []byte(`tampered`), 1700000000, sig))
	assert.False(t, Verify("secret", payload, 1700000001, sig))
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte("body")
	assert.Equal(t, Sign("k", payload, 42), Sign("k", payload, 42))
	assert.Contains(t, Sign("k", payload, 42), "v1=")
}
