package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatches(t *testing.T) {
	assert.Nil(t, Batches(nil, 3))
	assert.Equal(t, [][]string{{"a", "b"}}, Batches([]string{"a", "b"}, 0))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, Batches([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, Batches([]string{"a", "b"}, 1))
}
