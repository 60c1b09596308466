package personas

import (
	"strings"
	"testing"
)

func TestValidateFields(t *testing.T) {
	cases := []struct {
		name      string
		persona   string
		avatarURL string
		color     string
		bio       string
		wantErr   bool
	}{
		{"minimal", "Duke", "", "", "", false},
		{"all fields", "Duke", "https://example.com/a.png", "#a0b1c2", "a noble", false},
		{"short color", "Duke", "", "#fff", "", false},
		{"empty name", "", "", "", "", true},
		{"name too long", strings.Repeat("x", MaxNameLength+1), "", "", "", true},
		{"bio too long", "Duke", "", "", strings.Repeat("x", MaxBioLength+1), true},
		{"avatar too long", "Duke", "https://example.com/" + strings.Repeat("x", MaxAvatarURLLength), "", "", true},
		{"bad color", "Duke", "", "red", "", true},
		{"bad hex length", "Duke", "", "#ffff", "", true},
		{"missing hash", "Duke", "", "fff", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFields(tc.persona, tc.avatarURL, tc.color, tc.bio)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateFields err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestColorPattern(t *testing.T) {
	good := []string{"#fff", "#FFF", "#a0b1c2", "#ABCDEF"}
	bad := []string{"", "#", "#ff", "#fffffff", "abc", "#ggg"}
	for _, c := range good {
		if !colorPattern.MatchString(c) {
			t.Errorf("expected %q to match", c)
		}
	}
	for _, c := range bad {
		if colorPattern.MatchString(c) {
			t.Errorf("expected %q not to match", c)
		}
	}
}
