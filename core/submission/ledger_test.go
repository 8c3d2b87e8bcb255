package submission

import (
	"errors"
	"testing"
	"time"
)

var deadline = time.Date(2021, time.March, 15, 23, 59, 0, 0, time.UTC)

func TestExtensionsNeeded(t *testing.T) {
	tests := []struct {
		name        string
		grace       time.Duration
		submittedAt time.Time
		want        int
	}{
		{name: "well before deadline", submittedAt: deadline.Add(-48 * time.Hour)},
		{name: "at deadline", submittedAt: deadline},
		{name: "within grace", grace: 15 * time.Minute, submittedAt: deadline.Add(10 * time.Minute)},
		{name: "at end of grace", grace: 15 * time.Minute, submittedAt: deadline.Add(15 * time.Minute)},
		{name: "one second late", submittedAt: deadline.Add(time.Second), want: 1},
		{name: "one second past grace", grace: 15 * time.Minute, submittedAt: deadline.Add(15*time.Minute + time.Second), want: 1},
		{name: "just under a day late", submittedAt: deadline.Add(24*time.Hour - time.Second), want: 1},
		{name: "exactly a day late", submittedAt: deadline.Add(24 * time.Hour), want: 1},
		{name: "a day and a second late", submittedAt: deadline.Add(24*time.Hour + time.Second), want: 2},
		{name: "three days late", submittedAt: deadline.Add(72 * time.Hour), want: 3},
		{name: "grace shifts the day boundary", grace: time.Hour, submittedAt: deadline.Add(25 * time.Hour), want: 1},
		{name: "non-UTC instant", submittedAt: deadline.Add(time.Hour).In(time.FixedZone("EAT", 3*3600)), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtensionsNeeded(deadline, tt.grace, tt.submittedAt); got != tt.want {
				t.Errorf("ExtensionsNeeded() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtensionsNeeded_monotonic(t *testing.T) {
	prev := 0
	for i := 0; i < 96; i++ {
		at := deadline.Add(time.Duration(i) * time.Hour)
		got := ExtensionsNeeded(deadline, 0, at)
		if got < prev {
			t.Fatalf("ExtensionsNeeded() decreased from %d to %d at +%dh", prev, got, i)
		}
		prev = got
	}
}

func TestValidateSubmission(t *testing.T) {
	tests := []struct {
		name        string
		grace       time.Duration
		submittedAt time.Time
		requested   int
		available   int
		credited    int
		override    bool
		wantCharge  int
		wantErr     error
	}{
		{name: "on time, none requested", submittedAt: deadline.Add(-time.Hour)},
		{
			name: "on time but requested anyway", submittedAt: deadline.Add(-time.Hour), requested: 1,
			wantErr: &WrongExtensionCountError{Requested: 1, Needed: 0},
		},
		{
			name: "late, exact request", submittedAt: deadline.Add(30 * time.Hour), requested: 2, available: 2,
			wantCharge: 2,
		},
		{
			name: "late, under-requested", submittedAt: deadline.Add(30 * time.Hour), requested: 1, available: 5,
			wantErr: &WrongExtensionCountError{Requested: 1, Needed: 2},
		},
		{
			name: "late, no budget", submittedAt: deadline.Add(time.Hour), requested: 1, available: 0,
			wantErr: &InsufficientExtensionsError{Needed: 1, Available: 0},
		},
		{
			name: "resubmission credit covers the charge", submittedAt: deadline.Add(time.Hour),
			requested: 1, available: 0, credited: 1, wantCharge: 1,
		},
		{
			name: "override charges as requested", submittedAt: deadline.Add(30 * time.Hour),
			requested: 0, available: 0, override: true,
		},
		{
			name: "override cannot overdraw", submittedAt: deadline, requested: 3, available: 2, override: true,
			wantErr: &InsufficientExtensionsError{Needed: 3, Available: 2},
		},
		{
			name: "grace respected", grace: 15 * time.Minute, submittedAt: deadline.Add(10 * time.Minute),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			charge, err := ValidateSubmission(deadline, tt.grace, tt.submittedAt, tt.requested, tt.available, tt.credited, tt.override)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("ValidateSubmission() error = nil, want %v", tt.wantErr)
				}
				var wrongCount *WrongExtensionCountError
				var insufficient *InsufficientExtensionsError
				switch want := tt.wantErr.(type) {
				case *WrongExtensionCountError:
					if !errors.As(err, &wrongCount) || *wrongCount != *want {
						t.Errorf("ValidateSubmission() error = %v, want %v", err, want)
					}
				case *InsufficientExtensionsError:
					if !errors.As(err, &insufficient) || *insufficient != *want {
						t.Errorf("ValidateSubmission() error = %v, want %v", err, want)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateSubmission() unexpected error = %v", err)
			}
			if charge != tt.wantCharge {
				t.Errorf("ValidateSubmission() charge = %d, want %d", charge, tt.wantCharge)
			}
		})
	}
}
