package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinakademin/vinakademin-backend/models"
)

func ptr[T any](v T) *T { return &v }

func sampleCourse() *models.Course {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Course{
		Base: models.Base{ID: uuid.New()},
		Modules: []models.Module{
			{
				Base:  models.Base{ID: uuid.New(), CreatedAt: t0.Add(time.Hour)},
				Title: "Andra",
				Order: 2,
				Lessons: []models.Lesson{
					{Base: models.Base{ID: uuid.New()}, Title: "Rioja", Order: 1},
				},
			},
			{
				Base:  models.Base{ID: uuid.New(), CreatedAt: t0},
				Title: "Första",
				Order: 1,
				Lessons: []models.Lesson{
					{Base: models.Base{ID: uuid.New()}, Title: "Provning", Order: 2, IsFree: true,
						Body: "Titta, lukta, smaka", MuxPlaybackID: ptr("pb1")},
					{Base: models.Base{ID: uuid.New()}, Title: "Druvor", Order: 1, Body: "hemligt",
						MuxPlaybackID: ptr("pb2")},
				},
				Quizzes: []models.Quiz{
					{Base: models.Base{ID: uuid.New()}, Title: "Quiz", Order: 2},
				},
			},
		},
	}
}

func TestOrderedContent(t *testing.T) {
	course := sampleCourse()
	out := OrderedContent(course, false, nil)

	require.Len(t, out, 2)
	assert.Equal(t, "Första", out[0].Title)
	assert.Equal(t, "Andra", out[1].Title)

	items := out[0].Items
	require.Len(t, items, 3)
	assert.Equal(t, "Druvor", items[0].Title)
	// same order value: the lesson sorts before the quiz
	assert.Equal(t, "Provning", items[1].Title)
	assert.Equal(t, KindQuiz, items[2].Kind)

	assert.True(t, items[0].Locked)
	assert.Empty(t, items[0].Body)
	assert.Empty(t, items[0].MuxPlaybackID)

	assert.False(t, items[1].Locked)
	assert.Equal(t, "Titta, lukta, smaka", items[1].Body)
	assert.Equal(t, "pb1", items[1].MuxPlaybackID)
}

func TestOrderedContentWithAccess(t *testing.T) {
	course := sampleCourse()
	druvor := course.Modules[1].Lessons[1].ID
	out := OrderedContent(course, true, map[uuid.UUID]bool{druvor: true})

	for _, m := range out {
		for _, it := range m.Items {
			assert.False(t, it.Locked, it.Title)
		}
	}
	assert.True(t, out[0].Items[0].Completed)
	assert.Equal(t, "pb2", out[0].Items[0].MuxPlaybackID)
}

func TestOrderedContentDoesNotReorderInput(t *testing.T) {
	course := sampleCourse()
	OrderedContent(course, true, nil)
	assert.Equal(t, "Andra", course.Modules[0].Title)
}

func TestCountFreeItems(t *testing.T) {
	course := sampleCourse()
	free, total := CountFreeItems(course)
	assert.Equal(t, 1, free)
	assert.Equal(t, 4, total)

	course.IsFree = true
	free, total = CountFreeItems(course)
	assert.Equal(t, 4, free)
	assert.Equal(t, 4, total)
}

func TestCourseMembership(t *testing.T) {
	course := sampleCourse()
	assert.True(t, CourseHasLesson(course, course.Modules[0].Lessons[0].ID))
	assert.False(t, CourseHasLesson(course, uuid.New()))
	assert.True(t, CourseHasQuiz(course, course.Modules[1].Quizzes[0].ID))
	assert.False(t, CourseHasQuiz(course, course.Modules[0].Lessons[0].ID))
	assert.Len(t, LessonIDs(course), 3)
}
