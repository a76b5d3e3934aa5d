package weekday

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplay(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
		want string
	}{
		{"monday", Specific(Monday), "Monday"},
		{"range", Range(Monday, Wednesday), "Monday-Wednesday"},
		{"set", Set([]Day{Tuesday, Wednesday, Friday}), "Tuesday, Wednesday, Friday"},
		{"weekdays", Weekdays(), "weekdays"},
		{"weekend", Weekend(), "weekend"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.cond.String())
		})
	}
}

func TestIncludedDaysIsSubsetAndStable(t *testing.T) {
	cond := Range(Wednesday, Friday)
	first := cond.IncludedDays()
	second := cond.IncludedDays()
	assert.Equal(t, first, second)
	for _, d := range first {
		assert.True(t, d >= Monday && d <= Sunday)
	}
}

func TestRangeSwapsReversedBounds(t *testing.T) {
	cond := Range(Friday, Wednesday)
	assert.Equal(t, []Day{Wednesday, Thursday, Friday}, cond.IncludedDays())
}
