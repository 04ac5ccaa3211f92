package model

import "testing"

func TestGenerateID(t *testing.T) {
	for _, idType := range []IDType{IDTypeRun, IDTypeEvent} {
		t.Run(string(idType), func(t *testing.T) {
			id, err := GenerateID(idType)
			if err != nil {
				t.Fatalf("GenerateID(%s) returned error: %v", idType, err)
			}
			if !ValidateID(id) {
				t.Errorf("generated id %q does not match expected format", id)
			}
		})
	}
}

func TestGenerateID_InvalidType(t *testing.T) {
	if _, err := GenerateID("bogus"); err == nil {
		t.Errorf("GenerateID with invalid type should return an error")
	}
}

func TestValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		ok   bool
	}{
		{"build-api", true},
		{"spec", true},
		{"gate_1", true},
		{"9lives", true},
		{"", false},
		{"-leading", false},
		{"Has-Caps", false},
		{"with space", false},
	}
	for _, tt := range tests {
		if got := ValidSlug(tt.slug); got != tt.ok {
			t.Errorf("ValidSlug(%q) = %v, want %v", tt.slug, got, tt.ok)
		}
	}
}
