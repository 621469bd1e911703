package core

import (
	"strings"
	"time"

	"github.com/JonMunkholm/addrnorm/internal/normalize"
)

// Field names used in change tracking and reports.
const (
	FieldStreet   = "street"
	FieldLocality = "locality"
	FieldDistrict = "district"
	FieldRegion   = "region"
	FieldCountry  = "country"
	FieldZip      = "zip"
)

// ReportFields is the fixed order of fields in change reports.
var ReportFields = []string{FieldStreet, FieldLocality, FieldDistrict, FieldRegion, FieldCountry, FieldZip}

// RawAddressRecord is one input row. Missing columns are empty strings.
type RawAddressRecord struct {
	Address  string `json:"address,omitempty"`
	Country  string `json:"country" validate:"max=512"`
	Region   string `json:"region" validate:"max=512"`
	District string `json:"district" validate:"max=512"`
	Locality string `json:"locality" validate:"max=512"`
	Street   string `json:"street" validate:"max=512"`
	Zip      string `json:"zip" validate:"max=512"`
}

// Value returns the raw value of a report field.
func (r RawAddressRecord) Value(field string) string {
	switch field {
	case FieldStreet:
		return r.Street
	case FieldLocality:
		return r.Locality
	case FieldDistrict:
		return r.District
	case FieldRegion:
		return r.Region
	case FieldCountry:
		return r.Country
	case FieldZip:
		return r.Zip
	}
	return ""
}

// EnrichStatus tells whether enrichment ran for a row and how it went.
type EnrichStatus string

const (
	EnrichSkipped     EnrichStatus = "skipped"
	EnrichApplied     EnrichStatus = "applied"
	EnrichUnavailable EnrichStatus = "unavailable"
)

// Row is the normalized form of one RawAddressRecord.
type Row struct {
	Street      string                  `json:"street"`
	HouseNumber string                  `json:"houseNumber,omitempty"`
	Locality    string                  `json:"locality"`
	District    string                  `json:"district"`
	Region      string                  `json:"region"`
	Country     normalize.CountryResult `json:"country"`
	Zip         normalize.ZipResult     `json:"zip"`
	Addr        string                  `json:"addr"`

	Enrich      EnrichStatus `json:"enrich"`
	EnrichError string       `json:"enrichError,omitempty"`
}

// StreetLine joins the street and house number.
func (r Row) StreetLine() string {
	return strings.TrimSpace(r.Street + " " + r.HouseNumber)
}

// Value returns the normalized value of a report field.
func (r Row) Value(field string) string {
	switch field {
	case FieldStreet:
		return r.StreetLine()
	case FieldLocality:
		return r.Locality
	case FieldDistrict:
		return r.District
	case FieldRegion:
		return r.Region
	case FieldCountry:
		return r.Country.Name
	case FieldZip:
		return r.Zip.Norm
	}
	return ""
}

func (r Row) parts() normalize.Parts {
	return normalize.Parts{
		Street:      r.Street,
		HouseNumber: r.HouseNumber,
		Locality:    r.Locality,
		Region:      r.Region,
		District:    r.District,
		Zip:         r.Zip.Norm,
		Country:     r.Country.Name,
	}
}

// BatchOptions control one NormalizeBatch call.
type BatchOptions struct {
	FileName string
	Mode     string
	Enrich   bool
	Report   ReportOptions
}

// BatchStats summarizes a batch.
type BatchStats struct {
	Rows              int            `json:"rows"`
	Enriched          int            `json:"enriched"`
	EnrichUnavailable int            `json:"enrichUnavailable"`
	ValidZips         int            `json:"validZips"`
	CountriesResolved int            `json:"countriesResolved"`
	Changes           map[string]int `json:"changes"`
	Cleared           map[string]int `json:"cleared"`
}

// BatchResult is the outcome of NormalizeBatch. Rows are in input order.
type BatchResult struct {
	ID        string        `json:"id"`
	FileName  string        `json:"fileName,omitempty"`
	Mode      string        `json:"mode,omitempty"`
	Rows      []Row         `json:"-"`
	Changes   []ChangeEntry `json:"-"`
	Report    *Report       `json:"-"`
	Stats     BatchStats    `json:"stats"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
	SourceIP  string        `json:"-"`
	UserAgent string        `json:"-"`
}
