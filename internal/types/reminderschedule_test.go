package types

import (
	"testing"
	"time"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

func TestParseReminderSchedule(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "default schedule",
			raw:  "30,15,7",
			want: "30,15,7",
		},
		{
			name: "unordered input normalized descending",
			raw:  "7,30,15",
			want: "30,15,7",
		},
		{
			name: "duplicates removed",
			raw:  "30,30,7,7",
			want: "30,7",
		},
		{
			name: "whitespace and empty segments tolerated",
			raw:  " 30 , ,15,  7 ",
			want: "30,15,7",
		},
		{
			name: "zero offset means due date itself",
			raw:  "7,0",
			want: "7,0",
		},
		{
			name: "empty schedule is valid and never fires",
			raw:  "",
			want: "",
		},
		{
			name:    "non numeric entry rejected",
			raw:     "30,soon,7",
			wantErr: true,
		},
		{
			name:    "negative entry rejected",
			raw:     "30,-5",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReminderSchedule(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !ierr.IsConfiguration(err) {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestReminderSchedule_NextReminderDate(t *testing.T) {
	due := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	schedule := MustParseReminderSchedule("30,15,7")
	day := func(month time.Month, d int) time.Time {
		return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name     string
		lastSent time.Time
		asOf     time.Time
		want     time.Time
	}{
		{
			name: "nothing sent, first offset ahead",
			asOf: day(time.May, 1),
			want: day(time.May, 31),
		},
		{
			name: "nothing sent, first offset overdue",
			asOf: day(time.June, 10),
			want: day(time.May, 31),
		},
		{
			name:     "first sent on time, next is fifteen days out",
			lastSent: day(time.May, 31),
			asOf:     day(time.May, 31),
			want:     day(time.June, 15),
		},
		{
			name:     "late send covers every earlier offset",
			lastSent: day(time.June, 24),
			asOf:     day(time.June, 24),
			want:     time.Time{},
		},
		{
			name:     "late send leaves closer offsets ahead",
			lastSent: day(time.June, 10),
			asOf:     day(time.June, 10),
			want:     day(time.June, 15),
		},
		{
			name:     "all offsets behind the last send",
			lastSent: day(time.June, 23),
			asOf:     day(time.June, 29),
			want:     time.Time{},
		},
		{
			name:     "intraday time ignored",
			lastSent: time.Date(2024, time.May, 31, 9, 30, 0, 0, time.UTC),
			asOf:     time.Date(2024, time.May, 31, 23, 45, 0, 0, time.UTC),
			want:     day(time.June, 15),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schedule.NextReminderDate(due, tt.lastSent, tt.asOf)
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReminderSchedule_DueOffset(t *testing.T) {
	due := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	schedule := MustParseReminderSchedule("30,15,7")
	day := func(month time.Month, d int) time.Time {
		return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name       string
		lastSent   time.Time
		asOf       time.Time
		wantOffset int
		wantDue    bool
	}{
		{
			name: "before first window nothing fires",
			asOf: day(time.May, 30),
		},
		{
			name:       "exactly on first window",
			asOf:       day(time.May, 31),
			wantOffset: 30,
			wantDue:    true,
		},
		{
			name:     "first sent, second not yet due",
			lastSent: day(time.May, 31),
			asOf:     day(time.June, 1),
		},
		{
			name:       "first sent, second due",
			lastSent:   day(time.May, 31),
			asOf:       day(time.June, 15),
			wantOffset: 15,
			wantDue:    true,
		},
		{
			name:       "nothing ever sent fires the farthest offset once",
			asOf:       day(time.June, 24),
			wantOffset: 30,
			wantDue:    true,
		},
		{
			name:     "late send suppresses covered offsets",
			lastSent: day(time.June, 24),
			asOf:     day(time.June, 29),
		},
		{
			name:     "same day as last send never refires",
			lastSent: day(time.June, 15),
			asOf:     day(time.June, 15),
		},
		{
			name:       "closer offset still fires after a mid schedule send",
			lastSent:   day(time.June, 10),
			asOf:       day(time.June, 23),
			wantOffset: 15,
			wantDue:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, due := schedule.DueOffset(due, tt.asOf, tt.lastSent)
			if due != tt.wantDue {
				t.Fatalf("due = %v, want %v", due, tt.wantDue)
			}
			if due && offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

// Reminders walk the schedule in order and no offset ever fires twice.
func TestReminderSchedule_MonotonicFiring(t *testing.T) {
	due := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	schedule := MustParseReminderSchedule("30,15,7")

	var lastSent time.Time
	var fired []int
	for d := 0; d <= 45; d++ {
		asOf := time.Date(2024, time.May, 16, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
		if offset, ok := schedule.DueOffset(due, asOf, lastSent); ok {
			fired = append(fired, offset)
			lastSent = asOf
		}
	}

	want := []int{30, 15, 7}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired %v, want %v", fired, want)
		}
	}
}

func TestReminderSchedule_ReminderDates(t *testing.T) {
	due := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	schedule := MustParseReminderSchedule("30,15,7")

	dates := schedule.ReminderDates(due)
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			t.Errorf("dates not strictly increasing: %v then %v", dates[i-1], dates[i])
		}
	}
	if !dates[0].Equal(time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %v", dates[0])
	}
}
