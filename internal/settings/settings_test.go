package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type memBlob struct {
	data    []byte
	loadErr error
	saves   int
}

func (m *memBlob) LoadConfig(ctx context.Context) ([]byte, error) {
	return m.data, m.loadErr
}

func (m *memBlob) SaveConfig(ctx context.Context, data []byte) error {
	m.saves++
	m.data = append([]byte(nil), data...)
	return nil
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want Settings
	}{
		{"empty blob", "", Defaults()},
		{"null blob", "null", Defaults()},
		{"empty object", "{}", Defaults()},
		{
			name: "partial blob keeps defaults for missing keys",
			blob: `{"apiKey":"abc123","units":"imperial"}`,
			want: Settings{
				APIKey:    "abc123",
				Units:     "imperial",
				Timezone:  "Africa/Johannesburg",
				Longitude: "27.981751405133167",
				Latitude:  "-26.114842711916268",
			},
		},
		{
			name: "present empty string overrides default",
			blob: `{"timezone":""}`,
			want: func() Settings { s := Defaults(); s.Timezone = ""; return s }(),
		},
		{
			name: "null value keeps default",
			blob: `{"units":null,"latitude":"1"}`,
			want: func() Settings { s := Defaults(); s.Latitude = "1"; return s }(),
		},
		{
			name: "unknown keys ignored",
			blob: `{"latitude":"1","extra":"x"}`,
			want: func() Settings { s := Defaults(); s.Latitude = "1"; return s }(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge([]byte(tt.blob))
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMerge_InvalidJSON(t *testing.T) {
	got, err := Merge([]byte("{not json"))
	if err == nil {
		t.Fatal("Merge() expected error for invalid JSON")
	}
	if got != Defaults() {
		t.Errorf("Merge() = %+v, want defaults on error", got)
	}
}

func TestBlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	blob := &memBlob{}
	store := NewBlobStore(blob)

	want := Settings{
		APIKey:    "key-1234567890",
		Units:     "imperial",
		Timezone:  "Europe/London",
		Longitude: "-0.1276",
		Latitude:  "51.5072",
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestBlobStore_LoadError(t *testing.T) {
	store := NewBlobStore(&memBlob{loadErr: errors.New("disk gone")})
	got, err := store.Load(context.Background())
	if err == nil {
		t.Fatal("Load() expected error")
	}
	if got != Defaults() {
		t.Errorf("Load() = %+v, want defaults on error", got)
	}
}

func TestWith_ChangesOnlyOneField(t *testing.T) {
	ctx := context.Background()
	blob := &memBlob{}
	store := NewBlobStore(blob)
	base := Defaults()
	base.APIKey = "original-key"
	if err := store.Save(ctx, base); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	var before map[string]string
	if err := json.Unmarshal(blob.data, &before); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	changed, err := base.With(KeyUnits, "imperial")
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}
	if err := store.Save(ctx, changed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	var after map[string]string
	if err := json.Unmarshal(blob.data, &after); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for k, v := range before {
		if k == KeyUnits {
			continue
		}
		if after[k] != v {
			t.Errorf("field %s = %q, want unchanged %q", k, after[k], v)
		}
	}
	if after[KeyUnits] != "imperial" {
		t.Errorf("units = %q, want imperial", after[KeyUnits])
	}
}

func TestWith_UnknownField(t *testing.T) {
	s := Defaults()
	got, err := s.With("altitude", "100")
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("With() error = %v, want ErrUnknownField", err)
	}
	if got != s {
		t.Errorf("With() mutated settings on error: %+v", got)
	}
}

func TestGet_EveryPanelField(t *testing.T) {
	s := Settings{APIKey: "a", Units: "u", Timezone: "tz", Latitude: "lat", Longitude: "lon"}
	want := map[string]string{KeyAPIKey: "a", KeyUnits: "u", KeyTimezone: "tz", KeyLatitude: "lat", KeyLongitude: "lon"}
	for _, f := range Fields() {
		got, err := s.Get(f.Key)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", f.Key, err)
		}
		if got != want[f.Key] {
			t.Errorf("Get(%q) = %q, want %q", f.Key, got, want[f.Key])
		}
	}
	if len(Fields()) != 5 {
		t.Errorf("Fields() len = %d, want 5", len(Fields()))
	}
}

func TestCheck(t *testing.T) {
	s := Defaults()
	s.APIKey = "k"
	if notes := Check(s); len(notes) != 0 {
		t.Errorf("Check(valid) = %v, want none", notes)
	}

	s.Latitude = "north"
	s.Units = "kelvin"
	notes := Check(s)
	if len(notes) != 2 {
		t.Fatalf("Check() = %v, want 2 notes", notes)
	}
	if !strings.Contains(notes[0], "latitude") {
		t.Errorf("notes[0] = %q, want latitude note", notes[0])
	}
	if !strings.Contains(notes[1], "units") {
		t.Errorf("notes[1] = %q, want units note", notes[1])
	}
}
