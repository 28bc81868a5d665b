package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"2.5", "2500000000000000000"},
		{"0.000000000000000001", "1"},
		{"40wei", "40"},
		{" 7 wei", "7"},
	}
	for _, c := range cases {
		v, err := parseTokenAmount(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, v.String(), c.in)
	}
}

func TestParseTokenAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-1", "0.0000000000000000001", "0wei", "1.5wei"} {
		_, err := parseTokenAmount(in)
		assert.Error(t, err, in)
	}
}
