package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

func TestBillingPeriodDefinition_NextOccurrence(t *testing.T) {
	tests := []struct {
		name string
		def  BillingPeriodDefinition
		date time.Time
		want time.Time
	}{
		{
			name: "monthly simple",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			date: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly Jan 31 clamps to leap Feb 29",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			date: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly Jan 31 clamps to Feb 28 in non leap year",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			date: time.Date(2023, time.January, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly May 31 clamps to Jun 30",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			date: time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "quarterly crossing year boundary",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 3},
			date: time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "annual Feb 29 clamps to Feb 28",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 1},
			date: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "annual leap aligned over four years",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 4},
			date: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			want: time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly keeps exact seven day stride",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_WEEKLY, Count: 1},
			date: time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "daily never clamps at month end",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_DAILY, Count: 10},
			date: time.Date(2024, time.January, 25, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "daily crossing year boundary",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_DAILY, Count: 5},
			date: time.Date(2024, time.December, 29, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.NextOccurrence(tt.date)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBillingPeriodDefinition_NextOccurrence_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  BillingPeriodDefinition
	}{
		{
			name: "zero count",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 0},
		},
		{
			name: "negative count",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: -1},
		},
		{
			name: "unknown period",
			def:  BillingPeriodDefinition{Period: BillingPeriod("FORTNIGHTLY"), Count: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.NextOccurrence(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !ierr.IsConfiguration(err) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestBillingPeriodDefinition_PeriodEnd(t *testing.T) {
	tests := []struct {
		name  string
		def   BillingPeriodDefinition
		start time.Time
		want  time.Time
	}{
		{
			name:  "monthly from first of month",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "monthly from mid month",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			start: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "annual covers whole leap year",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 1},
			start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "two weeks ends day before next stride",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_WEEKLY, Count: 2},
			start: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2024, time.March, 17, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.PeriodEnd(tt.start)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBillingPeriodDefinition_TotalDays(t *testing.T) {
	tests := []struct {
		name  string
		def   BillingPeriodDefinition
		start time.Time
		want  int
	}{
		{
			name:  "january has 31 days",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			want:  31,
		},
		{
			name:  "leap february has 29 days",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			start: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			want:  29,
		},
		{
			name:  "leap year has 366 days",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 1},
			start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			want:  366,
		},
		{
			name:  "non leap year has 365 days",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 1},
			start: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
			want:  365,
		},
		{
			name:  "two weeks is 14 days",
			def:   BillingPeriodDefinition{Period: BILLING_PERIOD_WEEKLY, Count: 2},
			start: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
			want:  14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.TotalDays(tt.start)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBillingPeriodDefinition_PeriodsPerYear(t *testing.T) {
	tests := []struct {
		name string
		def  BillingPeriodDefinition
		want decimal.Decimal
	}{
		{
			name: "monthly",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1},
			want: decimal.NewFromInt(12),
		},
		{
			name: "quarterly",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 3},
			want: decimal.NewFromInt(4),
		},
		{
			name: "annual",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 1},
			want: decimal.NewFromInt(1),
		},
		{
			name: "weekly uses average year length",
			def:  BillingPeriodDefinition{Period: BILLING_PERIOD_WEEKLY, Count: 1},
			want: DaysPerYear.Div(decimal.NewFromInt(7)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.PeriodsPerYear()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBillingPeriodDefinition_String(t *testing.T) {
	tests := []struct {
		def  BillingPeriodDefinition
		want string
	}{
		{BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 1}, "monthly"},
		{BillingPeriodDefinition{Period: BILLING_PERIOD_MONTHLY, Count: 3}, "every 3 months"},
		{BillingPeriodDefinition{Period: BILLING_PERIOD_ANNUAL, Count: 1}, "annual"},
		{BillingPeriodDefinition{Period: BILLING_PERIOD_WEEKLY, Count: 2}, "every 2 weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.def.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
