package wrapped

import (
	"errors"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Category
		wantErr bool
	}{
		{name: "internal code", input: "RECENTLY_PLAYED", want: RecentlyPlayed},
		{name: "display name", input: "Top Genres", want: TopGenres},
		{name: "time-windowed display name", input: "Top Tracks (4 Weeks)", want: TopTracksShort},
		{name: "unknown", input: "TOP_PODCASTS", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "case sensitive", input: "recently_played", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCategory) {
					t.Fatalf("error = %v, want ErrUnknownCategory", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplayNamesBijective(t *testing.T) {
	seen := make(map[string]Category)
	for _, c := range Categories {
		name := c.DisplayName()
		if name == "" {
			t.Errorf("category %v has no display name", c)
			continue
		}
		if prev, dup := seen[name]; dup {
			t.Errorf("display name %q shared by %v and %v", name, prev, c)
		}
		seen[name] = c

		// Round-trip through the display name must land on the same
		// category.
		got, err := ParseCategory(name)
		if err != nil {
			t.Errorf("ParseCategory(%q): %v", name, err)
		}
		if got != c {
			t.Errorf("ParseCategory(%q) = %v, want %v", name, got, c)
		}
	}
}
