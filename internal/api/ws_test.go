package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecheckDue(t *testing.T) {
	start := time.Now()

	assert.False(t, recheckDue(start, start))
	assert.False(t, recheckDue(start, start.Add(sessionRecheckInterval-time.Second)))
	assert.True(t, recheckDue(start, start.Add(sessionRecheckInterval)))
	assert.True(t, recheckDue(start, start.Add(2*sessionRecheckInterval)))
}
