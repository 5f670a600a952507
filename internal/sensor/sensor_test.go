package sensor

import (
	"encoding/json"
	"testing"
)

func TestGeneratorRanges(t *testing.T) {
	g := NewGenerator("1", 42)
	for i := 0; i < 1000; i++ {
		v := g.Next()
		if v.ID != "1" {
			t.Fatalf("station id = %q", v.ID)
		}
		checks := []struct {
			name     string
			val      int
			min, max int
		}{
			{"temperature", v.Temperature, -50, 50},
			{"humidity", v.Humidity, 0, 100},
			{"windDirection", v.WindDirection, 0, 360},
			{"windIntensity", v.WindIntensity, 0, 100},
			{"rainHeight", v.RainHeight, 0, 50},
		}
		for _, c := range checks {
			if c.val < c.min || c.val > c.max {
				t.Fatalf("%s = %d outside %d..%d", c.name, c.val, c.min, c.max)
			}
		}
	}
}

func TestGeneratorVaries(t *testing.T) {
	g := NewGenerator("1", 7)
	first := g.Next()
	for i := 0; i < 10; i++ {
		if g.Next() != first {
			return
		}
	}
	t.Error("ten consecutive readings were identical")
}

func TestPayload(t *testing.T) {
	v := Values{ID: "1", Temperature: -12, Humidity: 55, WindDirection: 270, WindIntensity: 8, RainHeight: 0}
	data, err := v.JSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"1","temperature":"-12","humidity":"55","windDirection":"270","windIntensity":"8","rainHeight":"0"}`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("fields are not all strings: %v", err)
	}

	widest := Values{ID: "1", Temperature: -50, Humidity: 100, WindDirection: 360, WindIntensity: 100, RainHeight: 50}
	if data, _ := widest.JSON(); len(data) > 128 {
		t.Errorf("widest reading is %d bytes", len(data))
	}
}
