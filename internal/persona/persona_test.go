package persona

import (
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	r := NewResolver("https://book.example.com")

	tests := []struct {
		name          string
		path          string
		expectPersona string
		expectVoice   string
	}{
		{name: "default stream", path: "/stream", expectPersona: Default, expectVoice: "alloy"},
		{name: "sales stream", path: "/stream-sales", expectPersona: Sales, expectVoice: "alloy"},
		{name: "service stream", path: "/stream-service", expectPersona: Service, expectVoice: "verse"},
		{name: "unknown path", path: "/somewhere", expectPersona: Default, expectVoice: "alloy"},
		{name: "empty path", path: "", expectPersona: Default, expectVoice: "alloy"},
		{name: "mixed case", path: "/Stream-SALES", expectPersona: Sales, expectVoice: "alloy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := r.Resolve(tt.path)
			if profile.Name != tt.expectPersona {
				t.Errorf("Expected persona %s, got %s", tt.expectPersona, profile.Name)
			}
			if profile.Voice != tt.expectVoice {
				t.Errorf("Expected voice %s, got %s", tt.expectVoice, profile.Voice)
			}
			if profile.Instructions == "" {
				t.Error("Instructions must never be empty")
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver("")
	first := r.Resolve("/stream-service")
	for i := 0; i < 10; i++ {
		if got := r.Resolve("/stream-service"); got != first {
			t.Fatalf("Resolve returned a different profile on call %d", i)
		}
	}
}

func TestBookingURLRendered(t *testing.T) {
	r := NewResolver("https://book.example.com")

	for _, route := range []string{"/stream", "/stream-sales", "/stream-service"} {
		profile := r.Resolve(route)
		if !strings.Contains(profile.Instructions, "https://book.example.com") {
			t.Errorf("Persona %s does not mention the booking url", profile.Name)
		}
		if strings.Contains(profile.Instructions, "{{booking_url}}") {
			t.Errorf("Persona %s has an unrendered placeholder", profile.Name)
		}
	}
}

func TestDefaultBookingURL(t *testing.T) {
	r := NewResolver("")
	if !strings.Contains(r.Resolve("/stream").Instructions, DefaultBookingURL) {
		t.Error("Expected default booking url in instructions")
	}
}
