package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want Cents
	}{
		{"whole number", "19", 1900},
		{"one fractional digit", "19.9", 1990},
		{"two fractional digits", "19.90", 1990},
		{"minimum unit", "0.01", 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAmount(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"0", "0.00", "-1", "-1.50", "19.999", "not-a-number"} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			_, err := ParseAmount(raw)
			assert.Error(t, err)
		})
	}
}

func TestCents_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "19.90", Cents(1990).String())
	assert.Equal(t, "0.01", Cents(1).String())
	assert.Equal(t, "-5.00", Cents(-500).String())
}

func TestCents_MarshalJSON(t *testing.T) {
	t.Parallel()

	raw, err := Cents(1990).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "19.90", string(raw))
}
