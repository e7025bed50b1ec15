package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(3, 0))
	assert.Equal(t, 66.67, Percentage(2, 3))
	assert.Equal(t, 100.0, Percentage(5, 5))
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunks)
	assert.Nil(t, Chunk([]int{}, 3))
	assert.Len(t, Chunk([]int{1, 2, 3}, 0), 1)
}

func TestParseUnixTimestamp(t *testing.T) {
	ts := ParseUnixTimestamp("1700000000")
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ts)

	before := UTCNow().Add(-time.Second)
	assert.True(t, ParseUnixTimestamp("garbage").After(before))
	assert.True(t, ParseUnixTimestamp("").After(before))
}
