package valkey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_Key(t *testing.T) {
	c := &Client{keyPrefix: normalizePrefix("mediacache")}
	assert.Equal(t, "mediacache:media:entry:abc", c.Key("media", "entry", "abc"))
	assert.Equal(t, "mediacache", c.Key())

	bare := &Client{keyPrefix: normalizePrefix("")}
	assert.Equal(t, "media:owner:u1", bare.Key("media", "owner", "u1"))

	already := &Client{keyPrefix: normalizePrefix("tenant:")}
	assert.Equal(t, "tenant:media:entry:x", already.Key("media", "entry", "x"))
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)

	_, err = NewClient(context.Background(), Config{Address: "127.0.0.1:1", ConnectTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
