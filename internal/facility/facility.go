// Package facility holds the declarative descriptions of booking endpoints.
// Adding a venue whose markup matches an existing provider is a data change
// here, not a code change in a parser.
package facility

import (
	"encoding/json"
	"fmt"
	"os"
)

// Sport describes one sport variant offered by a facility. The provider
// sends all four identifiers with every calendar request.
type Sport struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// Facility describes one bookable venue on a per-date provider.
type Facility struct {
	ID         string  `json:"id"`
	Slug       string  `json:"slug"`
	Label      string  `json:"label"`
	BookingURL string  `json:"booking_url"`
	Sports     []Sport `json:"sports"`
}

// Defaults returns the built-in facility table.
func Defaults() []Facility {
	return []Facility{
		{
			ID:         "12886",
			Slug:       "vienna-sporthotel",
			Label:      "Vienna Sporthotel",
			BookingURL: "https://www.eversports.at/sb/vienna-sporthotel",
			Sports: []Sport{
				{
					ID:   "433",
					Slug: "tennis",
					Name: "Tennis",
					UUID: "b38729e9-69de-11e8-bdc6-02bd505aa7b2",
				},
			},
		},
		{
			ID:         "12782",
			Slug:       "tennis-point-vienna-ej5tqupn",
			Label:      "Tennis Point Vienna",
			BookingURL: "https://www.eversports.at/sb/tennis-point-vienna-ej5tqupn",
			Sports: []Sport{
				{
					ID:   "433",
					Slug: "tennis",
					Name: "Tennis",
					UUID: "b38729e9-69de-11e8-bdc6-02bd505aa7b2",
				},
			},
		},
		{
			ID:         "80214",
			Slug:       "kultur-und-sportvereinigung-der-wiener-gemeindebediensteten",
			Label:      "KSV Wiener Gemeindebedienstete",
			BookingURL: "https://www.eversports.at/sb/kultur-und-sportvereinigung-der-wiener-gemeindebediensteten",
			Sports: []Sport{
				{
					ID:   "1747",
					Slug: "tennis-outdoor",
					Name: "Tennis outdoor",
					UUID: "b389170d-69de-11e8-bdc6-02bd505aa7b2",
				},
				{
					ID:   "1748",
					Slug: "tennis-indoor",
					Name: "Tennis indoor",
					UUID: "b38917a8-69de-11e8-bdc6-02bd505aa7b2",
				},
			},
		},
	}
}

// Load reads additional facilities from a JSON file and appends them to the
// built-in table. Facilities with an ID already present override the
// built-in entry. An empty path returns the defaults unchanged.
func Load(path string) ([]Facility, error) {
	facilities := Defaults()
	if path == "" {
		return facilities, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading facility config: %w", err)
	}

	var extra []Facility
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parsing facility config: %w", err)
	}

	for _, f := range extra {
		if err := validate(f); err != nil {
			return nil, fmt.Errorf("facility %q: %w", f.Slug, err)
		}
		if i := indexByID(facilities, f.ID); i >= 0 {
			facilities[i] = f
		} else {
			facilities = append(facilities, f)
		}
	}

	return facilities, nil
}

func validate(f Facility) error {
	if f.ID == "" {
		return fmt.Errorf("missing id")
	}
	if f.Slug == "" {
		return fmt.Errorf("missing slug")
	}
	if len(f.Sports) == 0 {
		return fmt.Errorf("no sports configured")
	}
	for _, s := range f.Sports {
		if s.ID == "" || s.Slug == "" {
			return fmt.Errorf("sport %q missing id or slug", s.Name)
		}
	}
	return nil
}

func indexByID(facilities []Facility, id string) int {
	for i, f := range facilities {
		if f.ID == id {
			return i
		}
	}
	return -1
}
