package config

import (
	"strings"
	"testing"
	"time"
)

func TestScheduleLocation(t *testing.T) {
	tests := []struct {
		tz      string
		want    string
		wantErr bool
	}{
		{tz: "", want: time.Local.String()},
		{tz: "Local", want: time.Local.String()},
		{tz: "UTC", want: "UTC"},
		{tz: "Nowhere/Invalid", wantErr: true},
	}

	for _, tt := range tests {
		cfg := ScheduleConfig{Timezone: tt.tz}
		loc, err := cfg.Location()
		if tt.wantErr {
			if err == nil {
				t.Errorf("Location(%q): expected error", tt.tz)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Location(%q): %v", tt.tz, err)
		}
		if loc.String() != tt.want {
			t.Errorf("Location(%q) = %s, want %s", tt.tz, loc, tt.want)
		}
	}
}

func TestValidate_ReportsMissingKeys(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{Enabled: true}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"DB_HOST", "DB_NAME", "JWT_SECRET", "DEVICE_API_KEY", "MQTT_BROKER"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in %q", key, err.Error())
		}
	}

	cfg = &Config{
		Database: DatabaseConfig{Host: "db", DBName: "meds"},
		JWT:      JWTConfig{Secret: "s"},
		Device:   DeviceConfig{APIKey: "k"},
		Schedule: ScheduleConfig{Timezone: "UTC"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
