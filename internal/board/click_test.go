package board

import (
	"testing"
	"time"
)

func TestClickDetector(t *testing.T) {
	t.Parallel()
	cfg := ClickConfig{Debounce: 20 * time.Millisecond, DoubleWindow: 200 * time.Millisecond}

	type sample struct {
		at      int // ms
		pressed bool
	}
	tests := []struct {
		name    string
		samples []sample
		want    []Click
	}{
		{
			name:    "bounce is ignored",
			samples: []sample{{0, true}, {5, false}, {10, true}, {15, false}, {500, false}},
			want:    nil,
		},
		{
			name:    "single",
			samples: []sample{{0, true}, {30, true}, {100, false}, {130, false}, {340, false}},
			want:    []Click{ClickSingle},
		},
		{
			name: "double",
			samples: []sample{
				{0, true}, {30, true}, {60, false}, {90, false},
				{120, true}, {150, true}, {180, false}, {210, false}, {600, false},
			},
			want: []Click{ClickDouble},
		},
		{
			name: "two singles",
			samples: []sample{
				{0, true}, {30, true}, {60, false}, {90, false}, {300, false},
				{400, true}, {430, true}, {460, false}, {490, false}, {700, false},
			},
			want: []Click{ClickSingle, ClickSingle},
		},
		{
			name: "second press held past the window",
			samples: []sample{
				{0, true}, {30, true}, {60, false}, {90, false},
				{120, true}, {150, true}, {500, false}, {530, false}, {800, false},
			},
			want: []Click{ClickSingle, ClickSingle},
		},
		{
			name:    "held button never clicks",
			samples: []sample{{0, true}, {30, true}, {5000, true}},
			want:    nil,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewClickDetector(cfg)
			base := time.Unix(0, 0)
			var got []Click
			for _, s := range tt.samples {
				if c := d.Update(s.pressed, base.Add(time.Duration(s.at)*time.Millisecond)); c != ClickNone {
					got = append(got, c)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("clicks = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("clicks = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
