package utils

import (
	"testing"
)

type planInput struct {
	Times    []string `json:"times" validate:"omitempty,dive,hhmm"`
	Days     []int    `json:"daysOfWeek" validate:"omitempty,dive,weekday"`
	Dosage   float64  `json:"dosagePerIntake" validate:"required,gte=0.25,quarter_step"`
	Role     string   `json:"role" validate:"omitempty,user_role"`
	Phone    string   `json:"phone" validate:"omitempty,phone"`
	Nickname string   `json:"nickname" validate:"required"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	tests := []struct {
		name      string
		in        planInput
		wantField string
	}{
		{
			name: "valid",
			in:   planInput{Times: []string{"08:00", "20:30"}, Days: []int{1, 7}, Dosage: 1.25, Role: "doctor", Phone: "+16502530000", Nickname: "a"},
		},
		{
			name:      "bad time",
			in:        planInput{Times: []string{"8am"}, Dosage: 1, Nickname: "a"},
			wantField: "times[0]",
		},
		{
			name:      "weekday out of range",
			in:        planInput{Days: []int{0}, Dosage: 1, Nickname: "a"},
			wantField: "daysOfWeek[0]",
		},
		{
			name:      "dosage not quarter step",
			in:        planInput{Dosage: 1.1, Nickname: "a"},
			wantField: "dosagePerIntake",
		},
		{
			name:      "admin cannot sign up",
			in:        planInput{Dosage: 1, Role: "admin", Nickname: "a"},
			wantField: "role",
		},
		{
			name:      "bad phone",
			in:        planInput{Dosage: 1, Phone: "12345", Nickname: "a"},
			wantField: "phone",
		},
		{
			name:      "missing required",
			in:        planInput{Dosage: 1},
			wantField: "nickname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.in)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			details := ValidationDetails(err)
			if len(details) == 0 {
				t.Fatalf("expected validation details, got err=%v", err)
			}
			if details[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", details[0].Field, tt.wantField)
			}
			if details[0].Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestIsHHMM(t *testing.T) {
	cases := map[string]bool{
		"00:00": true,
		"23:59": true,
		"24:00": false,
		"7:30":  false,
		"07:60": false,
		"":      false,
	}
	for in, want := range cases {
		if got := IsHHMM(in); got != want {
			t.Errorf("IsHHMM(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("abc12"); err == nil {
		t.Error("expected short password to fail")
	}
	if err := ValidatePassword("abcdef"); err == nil {
		t.Error("expected password without digits to fail")
	}
	if err := ValidatePassword("abc123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
