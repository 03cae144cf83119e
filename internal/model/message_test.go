package model

import "testing"

func TestValidImportance(t *testing.T) {
	for _, v := range []Importance{ImportanceHigh, ImportanceMedium, ImportanceLow} {
		if !ValidImportance(v) {
			t.Errorf("ValidImportance(%q) = false", v)
		}
	}
	for _, v := range []Importance{ImportanceUnset, "critical", ""} {
		if ValidImportance(v) {
			t.Errorf("ValidImportance(%q) = true", v)
		}
	}
}

func TestValidCategory(t *testing.T) {
	valid := []Category{
		CategoryProfessional, CategoryPersonal, CategoryNewsletter,
		CategoryNotification, CategoryUrgent, CategoryCommercial,
		CategoryAdministrative,
	}
	for _, v := range valid {
		if !ValidCategory(v) {
			t.Errorf("ValidCategory(%q) = false", v)
		}
	}
	for _, v := range []Category{CategoryUnset, "spam", ""} {
		if ValidCategory(v) {
			t.Errorf("ValidCategory(%q) = true", v)
		}
	}
}

func TestClassified(t *testing.T) {
	tests := []struct {
		name       string
		importance Importance
		category   Category
		want       bool
	}{
		{"both set", ImportanceHigh, CategoryProfessional, true},
		{"both unset", ImportanceUnset, CategoryUnset, false},
		{"importance only", ImportanceHigh, CategoryUnset, false},
		{"category only", ImportanceUnset, CategoryProfessional, false},
	}
	for _, tt := range tests {
		m := Message{Importance: tt.importance, Category: tt.category}
		if got := m.Classified(); got != tt.want {
			t.Errorf("%s: Classified() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBodyFingerprint(t *testing.T) {
	a := BodyFingerprint("hello")
	b := BodyFingerprint("hello")
	c := BodyFingerprint("hello!")

	if a != b {
		t.Error("same body must produce the same fingerprint")
	}
	if a == c {
		t.Error("different bodies must produce different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}
