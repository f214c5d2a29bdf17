package fighter

import "testing"

func TestRosterCycles(t *testing.T) {
	t.Parallel()

	r := DefaultRoster()
	if r.Len() != 4 {
		t.Fatalf("expected 4 opponents, got %d", r.Len())
	}

	idx := 0
	for i := 0; i < r.Len(); i++ {
		idx = r.Next(idx)
	}
	if idx != 0 {
		t.Fatalf("expected index to wrap to 0, got %d", idx)
	}

	if got := r.Opponent(5).ID; got != "2" {
		t.Fatalf("expected opponent 2 at index 5, got %s", got)
	}
	if got := r.Opponent(-1).ID; got != "4" {
		t.Fatalf("expected opponent 4 at index -1, got %s", got)
	}
}

func TestNewRosterCopiesInput(t *testing.T) {
	t.Parallel()

	opps := []Profile{{ID: "x", Name: "X", Style: StyleBJJ}}
	r, err := NewRoster(Profile{ID: "me", Style: StyleWrestling}, opps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opps[0].Name = "changed"
	if r.Opponent(0).Name != "X" {
		t.Fatalf("roster must not share the caller's slice")
	}
}

func TestNewRosterRejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := NewRoster(Profile{Style: StyleMMA}, nil); err == nil {
		t.Fatal("expected error for empty opponents")
	}
	if _, err := NewRoster(Profile{Style: "Karate"}, []Profile{{Style: StyleMMA}}); err == nil {
		t.Fatal("expected error for unknown style")
	}
}

func TestNickname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		expect string
	}{
		{name: `VIKRAM "THE HAMMER" SINGH`, expect: "THE HAMMER"},
		{name: "NO NICK", expect: "NO NICK"},
		{name: `BROKEN ""`, expect: `BROKEN ""`},
	}

	for _, tt := range tests {
		if got := (Profile{Name: tt.name}).Nickname(); got != tt.expect {
			t.Fatalf("Nickname(%q) = %q, want %q", tt.name, got, tt.expect)
		}
	}
}

func TestChatMessageText(t *testing.T) {
	t.Parallel()

	msg := ChatMessage{Role: RoleModel, Parts: []Part{{Text: "one"}, {Text: "two"}}}
	if msg.Text() != "one\ntwo" {
		t.Fatalf("unexpected text: %q", msg.Text())
	}
}
