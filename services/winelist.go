package services

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
)

// WineListLimit caps how many reviews the wine list loads per request.
const WineListLimit = 500

type ReviewClass string

const (
	ReviewMine      ReviewClass = "mine"
	ReviewExpert    ReviewClass = "expert"
	ReviewCommunity ReviewClass = "community"
)

type WineListParams struct {
	Type           string
	Country        string
	Grape          string
	Search         string
	MinRating      int
	MaxPrice       *decimal.Decimal
	Sort           string // rating | name | price | newest
	IncludeUnrated bool
}

type WineListEntry struct {
	Wine         models.Wine `json:"wine"`
	Rating       int         `json:"rating"`
	Comment      string      `json:"comment,omitempty"`
	TastingNotes string      `json:"tasting_notes,omitempty"`
	ReviewedBy   string      `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time  `json:"reviewed_at,omitempty"`
	ReviewCount  int         `json:"review_count"`
	Class        ReviewClass `json:"class,omitempty"`
}

// LoadWineReviews fetches the newest wine reviews with wine and author.
func LoadWineReviews(db *gorm.DB) ([]models.Review, error) {
	var reviews []models.Review
	err := db.Preload("Wine").Preload("Author").
		Where("wine_id IS NOT NULL").
		Order("created_at DESC").
		Limit(WineListLimit).
		Find(&reviews).Error
	return reviews, err
}

// ClassifyReview tells the viewer whose opinion a review is.
func ClassifyReview(r *models.Review, viewerID uuid.UUID) ReviewClass {
	switch {
	case viewerID != uuid.Nil && r.AuthorID == viewerID:
		return ReviewMine
	case r.Author.Role.IsStaff():
		return ReviewExpert
	default:
		return ReviewCommunity
	}
}

// BuildWineList keeps the best review per wine (newest wins a tie),
// classifies it for the viewer, then filters and sorts. Wines from unrated
// without any review are appended after the rated ones when requested.
func BuildWineList(reviews []models.Review, unrated []models.Wine, viewerID uuid.UUID, p WineListParams) []WineListEntry {
	best := make(map[uuid.UUID]*models.Review)
	counts := make(map[uuid.UUID]int)
	for i := range reviews {
		r := &reviews[i]
		if r.WineID == nil || r.Wine == nil {
			continue
		}
		id := *r.WineID
		counts[id]++
		cur, ok := best[id]
		if !ok || r.Rating > cur.Rating || (r.Rating == cur.Rating && r.CreatedAt.After(cur.CreatedAt)) {
			best[id] = r
		}
	}

	entries := make([]WineListEntry, 0, len(best))
	for id, r := range best {
		at := r.CreatedAt
		entries = append(entries, WineListEntry{
			Wine:         *r.Wine,
			Rating:       r.Rating,
			Comment:      r.Comment,
			TastingNotes: r.TastingNotes,
			ReviewedBy:   r.Author.FullName,
			ReviewedAt:   &at,
			ReviewCount:  counts[id],
			Class:        ClassifyReview(r, viewerID),
		})
	}

	rated := filterWines(entries, p)
	sortWines(rated, p.Sort)

	if !p.IncludeUnrated || p.MinRating > 0 {
		return rated
	}
	var rest []WineListEntry
	for _, w := range unrated {
		if _, ok := best[w.ID]; ok {
			continue
		}
		rest = append(rest, WineListEntry{Wine: w})
	}
	rest = filterWines(rest, p)
	sortWines(rest, p.Sort)
	return append(rated, rest...)
}

func filterWines(in []WineListEntry, p WineListParams) []WineListEntry {
	search := strings.ToLower(strings.TrimSpace(p.Search))
	out := in[:0]
	for _, e := range in {
		w := e.Wine
		if p.Type != "" && !strings.EqualFold(string(w.Type), p.Type) {
			continue
		}
		if p.Country != "" && !strings.EqualFold(w.Country, p.Country) {
			continue
		}
		if p.Grape != "" && !strings.Contains(strings.ToLower(w.Grape), strings.ToLower(p.Grape)) {
			continue
		}
		if p.MinRating > 0 && e.Rating < p.MinRating {
			continue
		}
		if p.MaxPrice != nil && w.Price.GreaterThan(*p.MaxPrice) {
			continue
		}
		if search != "" {
			hay := strings.ToLower(w.Name + " " + w.Producer + " " + w.Region)
			if !strings.Contains(hay, search) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func sortWines(entries []WineListEntry, by string) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		nameA, nameB := strings.ToLower(a.Wine.Name), strings.ToLower(b.Wine.Name)
		switch by {
		case "name":
			if nameA != nameB {
				return nameA < nameB
			}
		case "price":
			if !a.Wine.Price.Equal(b.Wine.Price) {
				return a.Wine.Price.LessThan(b.Wine.Price)
			}
			if nameA != nameB {
				return nameA < nameB
			}
		case "newest":
			if ta, tb := reviewedAt(a), reviewedAt(b); !ta.Equal(tb) {
				return ta.After(tb)
			}
		default:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
			if nameA != nameB {
				return nameA < nameB
			}
		}
		// entries come from a map, the id keeps ties stable between requests
		return a.Wine.ID.String() < b.Wine.ID.String()
	})
}

func reviewedAt(e WineListEntry) time.Time {
	if e.ReviewedAt != nil {
		return *e.ReviewedAt
	}
	return e.Wine.CreatedAt
}
