package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"150", 15000, true},
		{"150.50", 15050, true},
		{"150,50", 15050, true},
		{"150.5", 15050, true},
		{"0.99", 99, true},
		{" 42 ", 4200, true},
		{"", 0, false},
		{"abc", 0, false},
		{"150.505", 0, false},
		{"-5", 0, false},
		{"10.", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseMoney(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestOptionInt64(t *testing.T) {
	assert.Equal(t, int64(500), optionInt64(map[string]interface{}{"amount": int64(500)}, "amount"))
	// JSON round-trip turns numbers into float64
	assert.Equal(t, int64(500), optionInt64(map[string]interface{}{"amount": float64(500)}, "amount"))
	assert.Equal(t, int64(0), optionInt64(nil, "amount"))
	assert.Equal(t, int64(0), optionInt64(map[string]interface{}{}, "amount"))
}

func TestAdminSecretOK(t *testing.T) {
	assert.True(t, adminSecretOK("s3cret", "s3cret"))
	assert.False(t, adminSecretOK("wrong", "s3cret"))
	assert.False(t, adminSecretOK("", "s3cret"))
	assert.False(t, adminSecretOK("s3cret", ""))
}
