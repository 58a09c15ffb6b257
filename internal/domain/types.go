package domain

import (
	"database/sql/driver"
	"encoding/json"
)

// PlaybackSnapshot preserves per-item playback state alongside its video
// file so a re-planned or restarted transfer keeps the resume point.
type PlaybackSnapshot struct {
	PositionSeconds int  `json:"position_seconds,omitempty"`
	IntroStart      int  `json:"intro_start,omitempty"`
	IntroEnd        int  `json:"intro_end,omitempty"`
	CreditsStart    int  `json:"credits_start,omitempty"`
	Played          bool `json:"played,omitempty"`
}

func (p PlaybackSnapshot) IsZero() bool {
	return p == PlaybackSnapshot{}
}

func (p PlaybackSnapshot) Value() (driver.Value, error) {
	if p.IsZero() {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *PlaybackSnapshot) Scan(value interface{}) error {
	if value == nil {
		*p = PlaybackSnapshot{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*p = PlaybackSnapshot{}
		return nil
	}

	return json.Unmarshal(data, p)
}
