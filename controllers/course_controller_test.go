package controllers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinakademin/vinakademin-backend/models"
)

func lessonNamed(t *testing.T, course *models.Course, title string) models.Lesson {
	t.Helper()
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			if l.Title == title {
				return l
			}
		}
	}
	t.Fatalf("lesson %q not found", title)
	return models.Lesson{}
}

func quizOf(t *testing.T, course *models.Course) models.Quiz {
	t.Helper()
	require.NotEmpty(t, course.Modules)
	require.NotEmpty(t, course.Modules[0].Quizzes)
	return course.Modules[0].Quizzes[0]
}

func TestListCourses(t *testing.T) {
	e := newEnv(t)
	published := e.course(499)
	draft := e.course(0)
	require.NoError(t, e.db.Model(&models.Course{}).Where("id = ?", draft.ID).Update("status", models.CourseDraft).Error)

	w := e.do(http.MethodGet, "/api/courses", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	courses := body["courses"].([]interface{})
	require.Len(t, courses, 1)
	entry := courses[0].(map[string]interface{})
	assert.Equal(t, published.Slug, entry["slug"])
	assert.EqualValues(t, 1, entry["free_items"])
	assert.EqualValues(t, 3, entry["total_items"])
	assert.Nil(t, entry["modules"])
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])

	w = e.do(http.MethodGet, "/api/courses/"+draft.Slug, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "drafts are hidden from the public")
}

func TestCourseContentLocking(t *testing.T) {
	e := newEnv(t)
	course := e.course(499)
	buyer, buyerToken := e.user(models.RoleUser, "")
	_, adminToken := e.user(models.RoleAdmin, "")

	items := func(token string) (bool, []interface{}) {
		w := e.do(http.MethodGet, "/api/courses/"+course.Slug+"/content", nil, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		modules := body["modules"].([]interface{})
		require.Len(t, modules, 1)
		return body["has_access"].(bool), modules[0].(map[string]interface{})["items"].([]interface{})
	}

	hasAccess, list := items("")
	assert.False(t, hasAccess)
	require.Len(t, list, 3)
	locked := map[string]bool{}
	for _, it := range list {
		item := it.(map[string]interface{})
		locked[item["title"].(string)] = item["locked"].(bool)
		if item["locked"].(bool) {
			assert.Nil(t, item["body"], "locked items never carry their body")
		}
	}
	assert.Equal(t, map[string]bool{"Introduktion": false, "Fördjupning": true, "Quiz": true}, locked)

	paid := lessonNamed(t, course, "Fördjupning")
	free := lessonNamed(t, course, "Introduktion")

	w := e.do(http.MethodGet, "/api/lessons/"+free.ID.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/api/lessons/"+paid.ID.String(), nil, buyerToken)
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, true, decode(t, w)["checkout"])

	w = e.do(http.MethodPost, "/api/enrollments/"+course.ID.String(), nil, buyerToken)
	assert.Equal(t, http.StatusPaymentRequired, w.Code, "paid courses go through checkout")

	w = e.do(http.MethodPost, "/api/admin/enrollments", map[string]string{
		"user_id": buyer.ID.String(), "course_id": course.ID.String(),
	}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	hasAccess, list = items(buyerToken)
	assert.True(t, hasAccess)
	for _, it := range list {
		assert.False(t, it.(map[string]interface{})["locked"].(bool))
	}

	w = e.do(http.MethodGet, "/api/lessons/"+paid.ID.String(), nil, buyerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Betalt innehåll", decode(t, w)["lesson"].(map[string]interface{})["body"])

	hasAccess, _ = items(adminToken)
	assert.True(t, hasAccess, "staff see everything")
}

func TestEnrollFreeAndProgress(t *testing.T) {
	e := newEnv(t)
	course := e.course(0)
	_, token := e.user(models.RoleUser, "")

	w := e.do(http.MethodPost, "/api/enrollments/"+course.ID.String(), nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)["enrollment"].(map[string]interface{})["id"]

	w = e.do(http.MethodPost, "/api/enrollments/"+course.ID.String(), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first, decode(t, w)["enrollment"].(map[string]interface{})["id"], "enrolling twice is a no-op")

	lesson := lessonNamed(t, course, "Fördjupning")
	w = e.do(http.MethodPost, "/api/lessons/"+lesson.ID.String()+"/complete", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/progress/"+course.ID.String(), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["enrolled"])

	w = e.do(http.MethodGet, "/api/me/enrollments", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["enrollments"], 1)
}

func TestRevokeEnrollment(t *testing.T) {
	e := newEnv(t)
	course := e.course(299)
	u, token := e.user(models.RoleUser, "")
	_, adminToken := e.user(models.RoleAdmin, "")

	w := e.do(http.MethodPost, "/api/admin/enrollments", map[string]string{
		"user_id": u.ID.String(), "course_id": course.ID.String(),
	}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["enrollment"].(map[string]interface{})["id"].(string)

	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/admin/enrollments/"+id, nil, adminToken).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/admin/enrollments/"+id, nil, adminToken).Code)

	paid := lessonNamed(t, course, "Fördjupning")
	assert.Equal(t, http.StatusPaymentRequired, e.do(http.MethodGet, "/api/lessons/"+paid.ID.String(), nil, token).Code)
}

func TestQuizAttempt(t *testing.T) {
	e := newEnv(t)
	course := e.course(0)
	_, token := e.user(models.RoleUser, "")
	quiz := quizOf(t, course)
	const explanation = "Nebbiolo är druvan i Barolo"
	require.NoError(t, e.db.Model(&models.Question{}).Where("quiz_id = ?", quiz.ID).Update("explanation", explanation).Error)

	w := e.do(http.MethodGet, "/api/quizzes/"+quiz.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "is_correct", "correct options stay hidden")
	assert.NotContains(t, w.Body.String(), explanation, "explanations only come with the graded result")

	var question models.Question
	require.NoError(t, e.db.Preload("Options").Where("quiz_id = ?", quiz.ID).First(&question).Error)
	var correct, wrong string
	for _, o := range question.Options {
		if o.IsCorrect {
			correct = o.ID.String()
		} else {
			wrong = o.ID.String()
		}
	}

	submit := func(option string) map[string]interface{} {
		w := e.do(http.MethodPost, "/api/quizzes/"+quiz.ID.String()+"/attempts", map[string]interface{}{
			"answers": []map[string]interface{}{{"question_id": question.ID.String(), "option_ids": []string{option}}},
		}, token)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode(t, w)["result"].(map[string]interface{})
	}

	result := submit(wrong)
	assert.Equal(t, false, result["passed"])
	assert.EqualValues(t, 0, result["score"])
	graded := result["results"].([]interface{})
	require.Len(t, graded, 1)
	assert.Equal(t, explanation, graded[0].(map[string]interface{})["explanation"])

	result = submit(correct)
	assert.Equal(t, true, result["passed"])
	assert.EqualValues(t, 100, result["percent"])

	w = e.do(http.MethodGet, "/api/quizzes/"+quiz.ID.String()+"/attempts", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["attempts"], 2)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/quizzes/"+quiz.ID.String()+"/attempts", nil, "").Code)
}
