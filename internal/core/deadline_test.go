package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PetrosWatts/regdeadline/internal/core"
)

func TestDeadlineInRange(t *testing.T) {
	tests := []struct {
		name string
		date string
		days int
		want bool
	}{
		{"blank", "", 30, false},
		{"malformed", "31/01/2024", 30, false},
		{"yesterday", "2023-12-31", 30, false},
		{"today", "2024-01-01", 30, false},
		{"tomorrow is less than a day away", "2024-01-02", 30, false},
		{"day after tomorrow", "2024-01-03", 30, true},
		{"inside window", "2024-01-20", 30, true},
		{"last day of window", "2024-02-01", 30, true},
		{"past window", "2024-02-02", 30, false},
		{"zero window", "2024-01-10", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.DeadlineInRange(tt.date, tt.days, testNow))
		})
	}
}

func TestDeadlinesTypesAreSorted(t *testing.T) {
	d := core.Deadlines{
		core.DeadlineConfirmationStatement: "2024-02-01",
		core.DeadlineAccounts:              "2024-03-01",
	}
	assert.Equal(t, []core.DeadlineType{core.DeadlineAccounts, core.DeadlineConfirmationStatement}, d.Types())
}
