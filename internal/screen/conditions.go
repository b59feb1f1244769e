package screen

import (
	"encoding/json"
	"time"
)

// Conditions is a targeting predicate set. Every present key must hold.
//
// List keys distinguish absent (nil, no constraint) from empty (non-nil with
// zero length, nothing allowed).
type Conditions struct {
	Platform        []string
	UserSegment     []string
	GeoLocation     []string
	ExperimentGroup []string
	DateRange       *DateRange
	FeatureFlag     string
	AppVersion      string
	Expression      string
}

type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type conditionsWire struct {
	Platform        *[]string  `json:"platform,omitempty"`
	UserSegment     *[]string  `json:"userSegment,omitempty"`
	GeoLocation     *[]string  `json:"geoLocation,omitempty"`
	ExperimentGroup *[]string  `json:"experimentGroup,omitempty"`
	DateRange       *DateRange `json:"dateRange,omitempty"`
	FeatureFlag     string     `json:"featureFlag,omitempty"`
	AppVersion      string     `json:"appVersion,omitempty"`
	Expression      string     `json:"expression,omitempty"`
}

func (c Conditions) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionsWire{
		Platform:        listPtr(c.Platform),
		UserSegment:     listPtr(c.UserSegment),
		GeoLocation:     listPtr(c.GeoLocation),
		ExperimentGroup: listPtr(c.ExperimentGroup),
		DateRange:       c.DateRange,
		FeatureFlag:     c.FeatureFlag,
		AppVersion:      c.AppVersion,
		Expression:      c.Expression,
	})
}

func (c *Conditions) UnmarshalJSON(data []byte) error {
	var w conditionsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Conditions{
		Platform:        listVal(w.Platform),
		UserSegment:     listVal(w.UserSegment),
		GeoLocation:     listVal(w.GeoLocation),
		ExperimentGroup: listVal(w.ExperimentGroup),
		DateRange:       w.DateRange,
		FeatureFlag:     w.FeatureFlag,
		AppVersion:      w.AppVersion,
		Expression:      w.Expression,
	}
	return nil
}

// IsZero reports whether no key is present.
func (c *Conditions) IsZero() bool {
	if c == nil {
		return true
	}
	return c.Platform == nil && c.UserSegment == nil && c.GeoLocation == nil &&
		c.ExperimentGroup == nil && c.DateRange == nil && c.FeatureFlag == "" &&
		c.AppVersion == "" && c.Expression == ""
}

func listPtr(v []string) *[]string {
	if v == nil {
		return nil
	}
	return &v
}

func listVal(p *[]string) []string {
	if p == nil {
		return nil
	}
	if *p == nil {
		return []string{}
	}
	return *p
}
