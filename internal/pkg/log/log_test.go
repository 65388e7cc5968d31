package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "[INFO] [req_id=abc] hello 1", formatLog("INFO", "abc", "hello %d", 1))
	assert.Equal(t, "[WARN] plain", formatLog("WARN", "", "plain"))
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	assert.True(t, DebugEnabled())
	Debug("visible %s", "line")
	SetDebug(false)
	assert.False(t, DebugEnabled())
}
