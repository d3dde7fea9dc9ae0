package vocab

import "testing"

func TestVocabulary_Lookup(t *testing.T) {
	v, err := New([]string{"apple", "banana", "cherry"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		word   string
		want   int
		wantOK bool
	}{
		{"apple", 0, true},
		{"banana", 1, true},
		{"cherry", 2, true},
		{"aardvark", -1, false},
		{"blueberry", -1, false},
		{"zucchini", -1, false},
		{"", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			got, ok := v.Lookup(tt.word)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Lookup(%q) = %d, %v; want %d, %v", tt.word, got, ok, tt.want, tt.wantOK)
			}
		})
	}
	if v.Len() != 3 || v.Word(1) != "banana" {
		t.Errorf("Len=%d Word(1)=%q", v.Len(), v.Word(1))
	}
}

func TestNew_RejectsUnsorted(t *testing.T) {
	if _, err := New([]string{"b", "a"}); err == nil {
		t.Error("expected error for unsorted words")
	}
	if _, err := New([]string{"a", "a"}); err == nil {
		t.Error("expected error for duplicate words")
	}
	if _, err := New(nil); err != nil {
		t.Errorf("empty vocabulary should be valid: %v", err)
	}
}
