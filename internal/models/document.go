package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PersonCity represents a person record stored in the search index
type PersonCity struct {
	ID          int64  `json:"id" yaml:"id" validate:"gt=0"`
	Name        string `json:"name" yaml:"name" validate:"required,max=256"`
	FamilyName  string `json:"familyName" yaml:"familyName" validate:"max=256"`
	Info        string `json:"info" yaml:"info"`
	CityCountry string `json:"cityCountry" yaml:"cityCountry" validate:"max=256"`
	Metadata    string `json:"metadata" yaml:"metadata"`
	Web         string `json:"web,omitempty" yaml:"web" validate:"omitempty,url"`
	Github      string `json:"github,omitempty" yaml:"github" validate:"omitempty,url"`
	Twitter     string `json:"twitter,omitempty" yaml:"twitter"`
	Mvp         bool   `json:"mvp" yaml:"mvp"`
}

// Validate checks the document fields before upload
func (p *PersonCity) Validate() error {
	if p == nil {
		return fmt.Errorf("document is nil")
	}
	return validate.Struct(p)
}

// SearchHit is a single scored document from a query
type SearchHit struct {
	Document *PersonCity `json:"document"`
	Score    float64     `json:"score"`
}

// SearchResult is what the index returns for a paged query
type SearchResult struct {
	Hits       []SearchHit `json:"hits"`
	TotalCount int64       `json:"total_count"`
}

// SearchData is the view model for one page of search results
type SearchData struct {
	SearchText   string      `json:"search_text"`
	Results      []SearchHit `json:"results"`
	TotalCount   int64       `json:"total_count"`
	PageCount    int         `json:"page_count"`
	CurrentPage  int         `json:"current_page"`
	LeftMostPage int         `json:"left_most_page"`
	PageRange    int         `json:"page_range"`
	Pages        []int       `json:"pages"`
	HasPrevious  bool        `json:"has_previous"`
	HasNext      bool        `json:"has_next"`
}

// IndexStatus reports whether the index exists and how many documents it holds
type IndexStatus struct {
	Exists        bool  `json:"exists"`
	DocumentCount int64 `json:"document_count"`
}
