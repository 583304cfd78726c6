package retrieval

import (
	"reflect"
	"testing"
)

func TestExtractHashTags(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"no tags", "how do I reset my password", nil},
		{"single tag", "see #billing for details", []string{"billing"}},
		{"normalized and sorted", "#Login broken #BILLING #login", []string{"billing", "login"}},
		{"bare hash ignored", "# what", nil},
		{"mid-sentence", "issue with #refunds today", []string{"refunds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHashTags(tt.message)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractHashTags(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Billing ", "LOGIN", "billing", "", "  "})
	want := []string{"billing", "login"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"drops short tokens", "how do I fix the password", []string{"password"}},
		{"splits on punctuation", "reset-password: account/billing!", []string{"reset", "password", "account", "billing"}},
		{"caps at five", "alpha bravo charlie delta echo foxtrot golf", []string{"alpha", "bravo", "charlie", "delta", "echo"}},
		{"lowercases", "RESET Password", []string{"reset", "password"}},
		{"nothing usable", "a an to of it", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.message)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}
