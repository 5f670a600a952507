// Package sensor simulates the weather station whose readings the client
// publishes.
package sensor

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"
)

// Values is one reading. Numbers are encoded as JSON strings.
type Values struct {
	ID            string `json:"id"`
	Temperature   int    `json:"temperature,string"`
	Humidity      int    `json:"humidity,string"`
	WindDirection int    `json:"windDirection,string"`
	WindIntensity int    `json:"windIntensity,string"`
	RainHeight    int    `json:"rainHeight,string"`
}

func (v Values) JSON() ([]byte, error) {
	return json.Marshal(v)
}

// Generator draws readings from a source seeded once at construction.
type Generator struct {
	stationID string

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(stationID string, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{stationID: stationID, rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) between(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

func (g *Generator) Next() Values {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Values{
		ID:            g.stationID,
		Temperature:   g.between(-50, 50),
		Humidity:      g.between(0, 100),
		WindDirection: g.between(0, 360),
		WindIntensity: g.between(0, 100),
		RainHeight:    g.between(0, 50),
	}
}

// Payload returns the next reading encoded as JSON.
func (g *Generator) Payload() ([]byte, error) {
	return g.Next().JSON()
}
