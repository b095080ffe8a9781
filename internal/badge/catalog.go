// internal/badge/catalog.go
// Package badge implements the achievement catalog and the pure evaluation
// that maps a user's completion/share state onto earned badges and
// progress-to-next-threshold labels.
package badge

import (
	"github.com/conequest/conequest-go/internal/model"
)

// Section groups badges for display.
type Section string

const (
	SectionCore    Section = "Core"
	SectionSocial  Section = "Social"
	SectionTypes   Section = "Types"
	SectionRegions Section = "Regions"
)

// Kind selects the threshold family a badge is evaluated under.
type Kind string

const (
	// KindCount: complete N targets total.
	KindCount Kind = "count"
	// KindShareCount: confirm N share bonuses.
	KindShareCount Kind = "share_count"
	// KindAllTargets: complete every active target.
	KindAllTargets Kind = "all_targets"
	// KindAllCategory: complete every target in one category.
	KindAllCategory Kind = "all_category"
	// KindAllRegion: complete every target in one region.
	KindAllRegion Kind = "all_region"
)

// Definition is a static catalog entry. Immutable, not user data.
type Definition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Section     Section        `json:"section"`
	Kind        Kind           `json:"-"`
	Threshold   int            `json:"-"` // count and share_count kinds
	Category    model.Category `json:"-"` // all_category kind
	Region      model.Region   `json:"-"` // all_region kind
}

// Catalog returns the badge catalog in its canonical order. Catalog order is
// load-bearing: it breaks next-up ties and drives the recently-unlocked
// prefix, so entries must only ever be appended.
func Catalog() []Definition {
	return []Definition{
		{ID: "first_steps", Name: "First Steps", Description: "Complete your first cone", Section: SectionCore, Kind: KindCount, Threshold: 1},
		{ID: "warming_up", Name: "Warming Up", Description: "Complete 5 cones", Section: SectionCore, Kind: KindCount, Threshold: 5},
		{ID: "seasoned", Name: "Seasoned Summiter", Description: "Complete 10 cones", Section: SectionCore, Kind: KindCount, Threshold: 10},
		{ID: "relentless", Name: "Relentless", Description: "Complete 25 cones", Section: SectionCore, Kind: KindCount, Threshold: 25},
		{ID: "field_complete", Name: "Field Complete", Description: "Complete every cone in the field", Section: SectionCore, Kind: KindAllTargets},

		{ID: "first_share", Name: "Spread the Word", Description: "Share a completion", Section: SectionSocial, Kind: KindShareCount, Threshold: 1},
		{ID: "influencer", Name: "Influencer", Description: "Share 5 completions", Section: SectionSocial, Kind: KindShareCount, Threshold: 5},

		{ID: "cone_collector", Name: "Cone Collector", Description: "Complete every scoria cone", Section: SectionTypes, Kind: KindAllCategory, Category: model.CategoryCone},
		{ID: "crater_hunter", Name: "Crater Hunter", Description: "Complete every crater", Section: SectionTypes, Kind: KindAllCategory, Category: model.CategoryCrater},
		{ID: "lake_walker", Name: "Lake Walker", Description: "Complete every lake", Section: SectionTypes, Kind: KindAllCategory, Category: model.CategoryLake},

		{ID: "north_explorer", Name: "North Explorer", Description: "Complete every northern cone", Section: SectionRegions, Kind: KindAllRegion, Region: model.RegionNorth},
		{ID: "central_explorer", Name: "Central Explorer", Description: "Complete every central cone", Section: SectionRegions, Kind: KindAllRegion, Region: model.RegionCentral},
		{ID: "east_explorer", Name: "East Explorer", Description: "Complete every eastern cone", Section: SectionRegions, Kind: KindAllRegion, Region: model.RegionEast},
		{ID: "south_explorer", Name: "South Explorer", Description: "Complete every southern cone", Section: SectionRegions, Kind: KindAllRegion, Region: model.RegionSouth},
		{ID: "harbour_explorer", Name: "Harbour Explorer", Description: "Complete every harbour cone", Section: SectionRegions, Kind: KindAllRegion, Region: model.RegionHarbour},
	}
}
