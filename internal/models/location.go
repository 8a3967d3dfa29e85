package models

import "time"

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// Place is a named pickup, drop or trip endpoint.
type Place struct {
	Name    string  `bson:"name" json:"name"`
	Address string  `bson:"address" json:"address" validate:"required"`
	Lat     float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lng     float64 `bson:"lng" json:"lng" validate:"longitude"`
}

// Point returns the coordinates of the place.
func (p Place) Point() Location {
	return Location{Lat: p.Lat, Lng: p.Lng}
}

// CurrentLocation is the latest position snapshot of a trip.
type CurrentLocation struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// LocationSample is one entry of a trip's location history.
type LocationSample struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Speed     float64   `bson:"speed" json:"speed"`
}
