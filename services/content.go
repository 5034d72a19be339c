package services

import (
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
)

type ItemKind string

const (
	KindLesson ItemKind = "lesson"
	KindQuiz   ItemKind = "quiz"
)

// ContentItem is one entry of a module's merged lesson/quiz list.
type ContentItem struct {
	Kind          ItemKind           `json:"kind"`
	ID            uuid.UUID          `json:"id"`
	Title         string             `json:"title"`
	Slug          string             `json:"slug,omitempty"`
	Order         int                `json:"order"`
	IsFree        bool               `json:"is_free"`
	Locked        bool               `json:"locked"`
	Completed     bool               `json:"completed"`
	DurationSec   int                `json:"duration_sec,omitempty"`
	VideoStatus   models.VideoStatus `json:"video_status,omitempty"`
	MuxPlaybackID string             `json:"mux_playback_id,omitempty"`
	Body          string             `json:"body,omitempty"`
}

type ModuleContent struct {
	ID    uuid.UUID     `json:"id"`
	Title string        `json:"title"`
	Order int           `json:"order"`
	Items []ContentItem `json:"items"`
}

// LoadCourseTree loads a course with modules, lessons and quizzes.
func LoadCourseTree(db *gorm.DB, query string, args ...interface{}) (*models.Course, error) {
	var course models.Course
	err := db.Preload("Modules").
		Preload("Modules.Lessons").
		Preload("Modules.Quizzes").
		Where(query, args...).
		First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// OrderedContent merges and sorts a course's content. Modules are sorted by
// Order then creation time; inside a module lessons and quizzes share one
// ordering, ties broken by kind (lesson first) and title.
// When hasAccess is false, items that are not free come back locked with no
// playback id or body.
func OrderedContent(course *models.Course, hasAccess bool, completed map[uuid.UUID]bool) []ModuleContent {
	modules := make([]models.Module, len(course.Modules))
	copy(modules, course.Modules)
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Order != modules[j].Order {
			return modules[i].Order < modules[j].Order
		}
		return modules[i].CreatedAt.Before(modules[j].CreatedAt)
	})

	out := make([]ModuleContent, 0, len(modules))
	for _, m := range modules {
		items := make([]ContentItem, 0, len(m.Lessons)+len(m.Quizzes))
		for _, l := range m.Lessons {
			free := course.IsFree || l.IsFree
			item := ContentItem{
				Kind:        KindLesson,
				ID:          l.ID,
				Title:       l.Title,
				Slug:        l.Slug,
				Order:       l.Order,
				IsFree:      free,
				Locked:      !free && !hasAccess,
				Completed:   completed[l.ID],
				DurationSec: l.DurationSec,
				VideoStatus: l.VideoStatus,
			}
			if !item.Locked {
				item.Body = l.Body
				if l.MuxPlaybackID != nil {
					item.MuxPlaybackID = *l.MuxPlaybackID
				}
			}
			items = append(items, item)
		}
		for _, q := range m.Quizzes {
			free := course.IsFree || q.IsFree
			items = append(items, ContentItem{
				Kind:      KindQuiz,
				ID:        q.ID,
				Title:     q.Title,
				Order:     q.Order,
				IsFree:    free,
				Locked:    !free && !hasAccess,
				Completed: completed[q.ID],
			})
		}
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i], items[j]
			if a.Order != b.Order {
				return a.Order < b.Order
			}
			if a.Kind != b.Kind {
				return a.Kind == KindLesson
			}
			return a.Title < b.Title
		})
		out = append(out, ModuleContent{ID: m.ID, Title: m.Title, Order: m.Order, Items: items})
	}
	return out
}

// CountFreeItems returns how many items of the course can be opened without
// buying it, and the total number of items.
func CountFreeItems(course *models.Course) (free, total int) {
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			total++
			if course.IsFree || l.IsFree {
				free++
			}
		}
		for _, q := range m.Quizzes {
			total++
			if course.IsFree || q.IsFree {
				free++
			}
		}
	}
	return free, total
}

// LessonIDs lists every lesson id of a loaded course tree.
func LessonIDs(course *models.Course) []uuid.UUID {
	var ids []uuid.UUID
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// CourseHasLesson reports whether lessonID belongs to the loaded course.
func CourseHasLesson(course *models.Course, lessonID uuid.UUID) bool {
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return true
			}
		}
	}
	return false
}

// CourseHasQuiz reports whether quizID belongs to the loaded course.
func CourseHasQuiz(course *models.Course, quizID uuid.UUID) bool {
	for _, m := range course.Modules {
		for _, q := range m.Quizzes {
			if q.ID == quizID {
				return true
			}
		}
	}
	return false
}
