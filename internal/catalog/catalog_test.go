package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := Parse("course:month:30:49900; course:forever:0:199900 ;club:month:30:9900")
	require.NoError(t, err)

	assert.Equal(t, []string{"course", "club"}, c.Products())
	assert.Len(t, c.PlansFor("course"), 2)

	month, ok := c.Find("course", "month")
	require.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, month.Duration())
	assert.False(t, month.Unlimited())
	assert.Equal(t, int64(49900), month.Price)

	forever, ok := c.Find("course", "forever")
	require.True(t, ok)
	assert.True(t, forever.Unlimited())

	_, ok = c.Find("course", "year")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	for _, spec := range []string{
		"course:month:30",
		"course::30:100",
		"course:month:x:100",
		"course:month:-1:100",
		"course:month:30:abc",
	} {
		_, err := Parse(spec)
		assert.Error(t, err, spec)
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse("  ;; ")
	require.NoError(t, err)
	assert.Empty(t, c.Products())
	assert.False(t, c.HasProduct("course"))
}
