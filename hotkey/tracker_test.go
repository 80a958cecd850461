package hotkey

import "testing"

type ev struct {
	code  uint16
	value int32
}

func TestTracker(t *testing.T) {
	tests := []struct {
		name   string
		events []ev
		want   []Edge
	}{
		{
			name:   "dictate press and release",
			events: []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 2}, {keySpace, 0}},
			want:   []Edge{{Dictate, true}, {Dictate, false}},
		},
		{
			name:   "summarize with right modifiers",
			events: []ev{{keyRCtrl, 1}, {keyRShift, 1}, {keyEnter, 1}, {keyEnter, 0}},
			want:   []Edge{{Summarize, true}, {Summarize, false}},
		},
		{
			name:   "keypad enter summarizes",
			events: []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keyKPEnter, 1}, {keyKPEnter, 0}},
			want:   []Edge{{Summarize, true}, {Summarize, false}},
		},
		{
			name:   "missing shift",
			events: []ev{{keyLCtrl, 1}, {keySpace, 1}, {keySpace, 0}},
			want:   nil,
		},
		{
			name:   "modifier released before trigger still ends combo",
			events: []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keyLCtrl, 0}, {keyLShift, 0}, {keySpace, 0}},
			want:   []Edge{{Dictate, true}, {Dictate, false}},
		},
		{
			name:   "second trigger while held is ignored",
			events: []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keyEnter, 1}, {keyEnter, 0}, {keySpace, 0}},
			want:   []Edge{{Dictate, true}, {Dictate, false}},
		},
		{
			name:   "autorepeat does not re-press",
			events: []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keyEnter, 1}, {keyEnter, 2}, {keyEnter, 2}, {keyEnter, 0}, {keyEnter, 1}},
			want:   []Edge{{Summarize, true}, {Summarize, false}, {Summarize, true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr tracker
			var got []Edge
			for _, e := range tt.events {
				if out, ok := tr.key(e.code, e.value); ok {
					got = append(got, out)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("edge %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestComboString(t *testing.T) {
	if Dictate.String() != "ctrl+shift+space" || Summarize.String() != "ctrl+shift+enter" {
		t.Errorf("unexpected names %s, %s", Dictate, Summarize)
	}
}
