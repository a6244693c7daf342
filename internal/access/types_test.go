package access

import (
	"testing"
	"time"
)

func TestParsePermissionType(t *testing.T) {
	tests := []struct {
		in     string
		want   PermissionType
		wantOK bool
	}{
		{"read", PermissionRead, true},
		{"WRITE", PermissionWrite, true},
		{" write ", PermissionWrite, true},
		{"admin", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParsePermissionType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePermissionType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCapabilitiesFor(t *testing.T) {
	write := CapabilitiesFor(PermissionWrite)
	if len(write) != 2 {
		t.Errorf("write capabilities = %v, want view and change", write)
	}

	read := CapabilitiesFor(PermissionRead)
	if len(read) != 1 || read[0] != CapabilityView {
		t.Errorf("read capabilities = %v, want [view]", read)
	}
}

func TestRequiredCapability(t *testing.T) {
	if got := RequiredCapability(PermissionWrite); got != CapabilityChange {
		t.Errorf("write requires %q, want change", got)
	}
	if got := RequiredCapability(PermissionRead); got != CapabilityView {
		t.Errorf("read requires %q, want view", got)
	}
}

func TestPermission_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name       string
		validUntil *time.Time
		want       bool
	}{
		{"no expiry", nil, false},
		{"future expiry", &future, false},
		{"past expiry", &past, true},
		{"exact boundary", &now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Permission{ValidUntil: tt.validUntil}
			if got := p.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
