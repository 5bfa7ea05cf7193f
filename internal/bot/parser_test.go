package bot

import (
	"reflect"
	"testing"
)

func TestIsCommand(t *testing.T) {
	if !IsCommand("!menu") {
		t.Error("!menu should be a command")
	}
	if IsCommand("menu") {
		t.Error("bare word is not a command")
	}
	if !IsCommand("!") {
		t.Error("lone prefix still counts as command input")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want *Command
	}{
		{"!add Sadza 2", &Command{Name: "add", Args: []string{"Sadza", "2"}}},
		{"!MENU", &Command{Name: "menu", Args: nil}},
		{"!checkout   ", &Command{Name: "checkout", Args: nil}},
		{"!orders   pending", &Command{Name: "orders", Args: []string{"pending"}}},
		{"!", nil},
		{"hello", nil},
	}
	for _, tt := range tests {
		got := ParseCommand(tt.in)
		if tt.want == nil {
			if got != nil {
				t.Errorf("ParseCommand(%q) = %+v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("ParseCommand(%q) = nil, want %+v", tt.in, tt.want)
			continue
		}
		if got.Name != tt.want.Name || !reflect.DeepEqual(got.Args, tt.want.Args) {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I want 2 sadza please", IntentOrder},
		{"can I get chicken and rice?", IntentOrder},
		{"show me the menu", IntentBrowse},
		{"what's available today", IntentBrowse},
		{"I'm ready to pay", IntentCheckout},
		{"where is my delivery", IntentStatus},
		{"hello there", IntentGreet},
		{"what can you do", IntentHelp},
		{"xyzzy", ""},
	}
	for _, tt := range tests {
		if got := DetectIntent(tt.in); got != tt.want {
			t.Errorf("DetectIntent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntentPrecedenceFavorsPurchase(t *testing.T) {
	// "order" appears in the purchase pattern, which is checked before the
	// browse and status patterns.
	if got := DetectIntent("I want to order from the menu"); got != IntentOrder {
		t.Errorf("DetectIntent = %q, want %q", got, IntentOrder)
	}
}

func TestIsValidNaturalLanguage(t *testing.T) {
	if IsValidNaturalLanguage("hi") {
		t.Error("two characters is too short")
	}
	if !IsValidNaturalLanguage("hi there") {
		t.Error("greeting should be valid")
	}
	if IsValidNaturalLanguage("asdf qwerty") {
		t.Error("gibberish has no intent")
	}
}
