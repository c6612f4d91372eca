package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularFloat(t *testing.T) {
	assert := assert.New(t)

	cf := NewCircularFloat(4)
	assert.Equal(4, cf.BufSize)
	assert.Equal(0, cf.Count)
	assert.False(cf.Full())
	assert.Equal(0.0, cf.Mean())

	cf.Add(1.0)
	cf.Add(2.0)
	cf.Add(3.0)
	assert.Equal(3, cf.Count)
	assert.False(cf.Full())
	assert.Equal(2.0, cf.Mean())

	cf.Add(4.0)
	assert.Equal(4, cf.Count)
	assert.True(cf.Full())
	assert.Equal(2.5, cf.Mean())

	// 1 2 3 4 add 9 add 9 => 9 9 3 4
	cf.Add(9.0)
	cf.Add(9.0)
	assert.Equal(4, cf.Count)
	assert.Equal(int64(6), cf.TotalSeen)
	assert.Equal((9.0+9.0+3.0+4.0)/4.0, cf.Mean())
}
