package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rinha/payment-intermediary/internal/types"
)

func TestChoose(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		def, fallback types.HealthSnapshot
		want          types.ProcessorID
	}{
		{
			name: "default fast and healthy wins outright",
			def:  types.HealthSnapshot{Failing: false, MinResponseTime: 50},
			fallback: types.HealthSnapshot{Failing: false, MinResponseTime: 5},
			want: types.ProcessorDefault,
		},
		{
			name:     "default failing, fallback healthy",
			def:      types.HealthSnapshot{Failing: true, MinResponseTime: 0},
			fallback: types.HealthSnapshot{Failing: false, MinResponseTime: 300},
			want:     types.ProcessorFallback,
		},
		{
			name:     "both healthy, default within 2x of fallback",
			def:      types.HealthSnapshot{Failing: false, MinResponseTime: 200},
			fallback: types.HealthSnapshot{Failing: false, MinResponseTime: 150},
			want:     types.ProcessorDefault,
		},
		{
			name:     "both healthy, default more than 2x slower",
			def:      types.HealthSnapshot{Failing: false, MinResponseTime: 500},
			fallback: types.HealthSnapshot{Failing: false, MinResponseTime: 150},
			want:     types.ProcessorFallback,
		},
		{
			name:     "both failing falls back to default",
			def:      types.HealthSnapshot{Failing: true, MinResponseTime: 0},
			fallback: types.HealthSnapshot{Failing: true, MinResponseTime: 0},
			want:     types.ProcessorDefault,
		},
		{
			name:     "default failing, fallback also failing",
			def:      types.HealthSnapshot{Failing: true, MinResponseTime: 9999},
			fallback: types.HealthSnapshot{Failing: true, MinResponseTime: 1},
			want:     types.ProcessorDefault,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Choose(tc.def, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}
