package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilClientIsNoOp(t *testing.T) {
	var c *Client

	// A nil bus is the disabled state; publishing must not panic.
	c.PublishQuote("TSLA", map[string]string{"side": "BUY"})
	c.PublishExecution("TSLA", nil)
	c.PublishSwap("USDH", nil)
	c.Close()
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "TSLA", subjectToken("tsla"))
	assert.Equal(t, "USDT0", subjectToken("USDT0"))
	assert.Equal(t, "A_B", subjectToken("a.b"))
	assert.Equal(t, "UNKNOWN", subjectToken(""))
}
