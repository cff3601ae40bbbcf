package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no-break space collapses to ascii space",
			in:   "1\u00a0234\u00a0567",
			want: "1 234 567",
		},
		{
			name: "narrow no-break and thin spaces",
			in:   "9\u202f999\u2009999",
			want: "9 999 999",
		},
		{
			name: "zero-width runes removed",
			in:   "Net\u200bIncome\u200cLoss\ufeff",
			want: "NetIncomeLoss",
		},
		{
			name: "full-width digits fold to ascii",
			in:   "１２３４",
			want: "1234",
		},
		{
			name: "plain ascii untouched",
			in:   `{"facts":{"us-gaap":{}}}`,
			want: `{"facts":{"us-gaap":{}}}`,
		},
		{
			name: "newlines and tabs preserved",
			in:   "a\n\tb",
			want: "a\n\tb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(RepairBytes([]byte(tt.in))))
		})
	}
}

func TestRepairBytesThenParse(t *testing.T) {
	// A mangled numeric string becomes parseable after repair plus lenient
	// numeric coercion.
	raw := "1\u00a0234\u200b567"
	repaired := string(RepairBytes([]byte(raw)))
	got, ok := numericValue(repaired, true)
	assert.True(t, ok)
	assert.InDelta(t, 1234567.0, got, 1e-9)
}
