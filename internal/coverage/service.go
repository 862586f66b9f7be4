// Package coverage serves read-only campaign queries over the spatial
// index: filtered listings, single-campaign lookup, viewport
// intersection and zoom-dependent clustering for the map UI.
package coverage

import (
	"sort"
	"strings"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
)

// Query filters and paginates a campaign listing.
type Query struct {
	Bounds          *geo.Bounds
	MinResolutionM  float64
	MaxResolutionM  float64
	DataTypes       []index.DataType
	Providers       []string
	Countries       []string
	YearFrom        int
	YearTo          int
	Page            int
	PageSize        int
	IncludeTiles    bool
	IncludeGeometry bool
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// CampaignView is the response shape for one campaign.
type CampaignView struct {
	ID           string            `json:"id"`
	Country      string            `json:"country"`
	Name         string            `json:"name"`
	Provider     string            `json:"provider"`
	DataType     index.DataType    `json:"data_type"`
	ResolutionM  float64           `json:"resolution_m"`
	Priority     int               `json:"priority"`
	CostPerQuery float64           `json:"cost_per_query"`
	Bounds       geo.Bounds        `json:"bounds"`
	CampaignYear int               `json:"campaign_year,omitempty"`
	SurveyName   string            `json:"survey_name,omitempty"`
	FileCount    int               `json:"file_count"`
	Files        []index.TileEntry `json:"files,omitempty"`
	Geometry     *Geometry         `json:"geometry,omitempty"`
}

// ListResult is one page of campaigns.
type ListResult struct {
	Campaigns []CampaignView `json:"campaigns"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
}

// Service queries one read-only index.
type Service struct {
	idx *index.SpatialIndex
}

func New(idx *index.SpatialIndex) *Service {
	return &Service{idx: idx}
}

// List returns campaigns matching the query, sorted by id, paginated.
func (s *Service) List(q Query) ListResult {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	var refs []index.CampaignRef
	if q.Bounds != nil {
		refs = s.idx.CampaignsIntersecting(*q.Bounds)
	} else {
		refs = s.idx.Campaigns()
	}

	var matched []index.CampaignRef
	for _, ref := range refs {
		if s.matches(ref, q) {
			matched = append(matched, ref)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Campaign.ID < matched[j].Campaign.ID
	})

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	views := make([]CampaignView, 0, end-start)
	for _, ref := range matched[start:end] {
		views = append(views, s.view(ref, q.IncludeTiles, q.IncludeGeometry))
	}
	return ListResult{Campaigns: views, Total: total, Page: page, PageSize: pageSize}
}

// Get returns one campaign by id.
func (s *Service) Get(id string, includeTiles, includeGeometry bool) (CampaignView, bool) {
	ref := s.idx.CampaignByID(id)
	if ref == nil {
		return CampaignView{}, false
	}
	return s.view(*ref, includeTiles, includeGeometry), true
}

// InBounds returns campaigns intersecting a viewport via the 1-degree
// grid index.
func (s *Service) InBounds(b geo.Bounds) []CampaignView {
	refs := s.idx.CampaignsIntersecting(b)
	views := make([]CampaignView, 0, len(refs))
	for _, ref := range refs {
		views = append(views, s.view(ref, false, false))
	}
	return views
}

// Clusters buckets campaigns for a viewport at the given zoom.
func (s *Service) Clusters(b geo.Bounds, zoom int) []index.Cluster {
	return s.idx.ClustersFor(b, zoom)
}

func (s *Service) matches(ref index.CampaignRef, q Query) bool {
	c := ref.Campaign
	if q.MinResolutionM > 0 && c.ResolutionM < q.MinResolutionM {
		return false
	}
	if q.MaxResolutionM > 0 && c.ResolutionM > q.MaxResolutionM {
		return false
	}
	if len(q.DataTypes) > 0 && !containsDataType(q.DataTypes, c.DataType) {
		return false
	}
	if len(q.Providers) > 0 && !containsFold(q.Providers, c.Provider) {
		return false
	}
	if len(q.Countries) > 0 && !containsFold(q.Countries, ref.Collection.Country) {
		return false
	}
	if q.YearFrom > 0 && (c.CampaignYear == 0 || c.CampaignYear < q.YearFrom) {
		return false
	}
	if q.YearTo > 0 && (c.CampaignYear == 0 || c.CampaignYear > q.YearTo) {
		return false
	}
	return true
}

func (s *Service) view(ref index.CampaignRef, includeTiles, includeGeometry bool) CampaignView {
	c := ref.Campaign
	v := CampaignView{
		ID:           c.ID,
		Country:      ref.Collection.Country,
		Name:         c.Name,
		Provider:     c.Provider,
		DataType:     c.DataType,
		ResolutionM:  c.ResolutionM,
		Priority:     c.Priority,
		CostPerQuery: c.CostPerQuery,
		Bounds:       c.Bounds,
		CampaignYear: c.CampaignYear,
		SurveyName:   c.SurveyName,
		FileCount:    c.FileCount,
	}
	if includeTiles {
		v.Files = c.Files
	}
	if includeGeometry {
		g := Footprint(c)
		v.Geometry = &g
	}
	return v
}

func containsDataType(set []index.DataType, dt index.DataType) bool {
	for _, d := range set {
		if d == dt {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
