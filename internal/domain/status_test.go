package domain

import "testing"

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
		backward bool
	}{
		{StatusNew, StatusAcknowledged, true, false},
		{StatusNew, StatusActioned, true, false},
		{StatusAcknowledged, StatusActioned, true, false},
		{StatusActioned, StatusNew, true, true},
		{StatusAcknowledged, StatusNew, true, true},
		{StatusNew, StatusNew, false, false},
		{StatusNew, Status("DONE"), false, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: CanTransitionTo=%v, want %v", tc.from, tc.to, got, tc.ok)
		}
		if tc.ok {
			if got := tc.from.IsBackward(tc.to); got != tc.backward {
				t.Errorf("%s -> %s: IsBackward=%v, want %v", tc.from, tc.to, got, tc.backward)
			}
		}
	}
}

func TestAutoAcknowledge(t *testing.T) {
	if got := AutoAcknowledge(StatusNew, 4); got != StatusAcknowledged {
		t.Fatalf("NEW sev4: got %s", got)
	}
	if got := AutoAcknowledge(StatusNew, 3); got != StatusNew {
		t.Fatalf("NEW sev3: got %s", got)
	}
	if got := AutoAcknowledge(StatusActioned, 5); got != StatusActioned {
		t.Fatalf("ACTIONED sev5 must not regress, got %s", got)
	}
}

func TestParseStatus(t *testing.T) {
	if _, ok := ParseStatus("ACKNOWLEDGED"); !ok {
		t.Fatal("expected ACKNOWLEDGED to parse")
	}
	if _, ok := ParseStatus("acknowledged"); ok {
		t.Fatal("statuses are case-sensitive")
	}
}
