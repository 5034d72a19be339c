package controllers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinakademin/vinakademin-backend/models"
)

func TestWineListAndReviews(t *testing.T) {
	e := newEnv(t)
	_, adminToken := e.user(models.RoleAdmin, "")
	_, memberToken := e.user(models.RoleUser, "")

	newWine := func(body map[string]interface{}) string {
		w := e.do(http.MethodPost, "/api/admin/wines", body, adminToken)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode(t, w)["wine"].(map[string]interface{})["id"].(string)
	}
	barolo := newWine(map[string]interface{}{"name": "Barolo", "country": "Italien", "grape": "Nebbiolo", "price": "389"})
	chablis := newWine(map[string]interface{}{"name": "Chablis", "country": "Frankrike", "type": "white", "price": "219"})
	newWine(map[string]interface{}{"name": "Rioja", "country": "Spanien"})

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/admin/wines", map[string]string{"name": "X"}, memberToken).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/admin/wines", map[string]string{"type": "blue"}, adminToken).Code)

	review := func(wine, token string, rating int) int {
		return e.do(http.MethodPost, "/api/wines/"+wine+"/reviews", map[string]interface{}{"rating": rating, "comment": "Fint"}, token).Code
	}
	assert.Equal(t, http.StatusCreated, review(barolo, memberToken, 3))
	assert.Equal(t, http.StatusCreated, review(barolo, adminToken, 5))
	assert.Equal(t, http.StatusCreated, review(chablis, memberToken, 2))
	assert.Equal(t, http.StatusOK, review(chablis, memberToken, 4), "reviewing again updates the review")
	assert.Equal(t, http.StatusBadRequest, review(chablis, memberToken, 6))

	w := e.do(http.MethodGet, "/api/wines", nil, memberToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	require.EqualValues(t, 2, body["total"])
	wines := body["wines"].([]interface{})
	first := wines[0].(map[string]interface{})
	second := wines[1].(map[string]interface{})

	assert.Equal(t, "Barolo", first["wine"].(map[string]interface{})["name"])
	assert.EqualValues(t, 5, first["rating"])
	assert.Equal(t, "expert", first["class"])
	assert.EqualValues(t, 2, first["review_count"])

	assert.Equal(t, "Chablis", second["wine"].(map[string]interface{})["name"])
	assert.Equal(t, "mine", second["class"])
	assert.EqualValues(t, 1, second["review_count"])

	w = e.do(http.MethodGet, "/api/wines?include_unrated=true&sort=name", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["total"])

	w = e.do(http.MethodGet, "/api/wines?type=white", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = e.do(http.MethodGet, "/api/wines?max_price=300", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestDeleteReview(t *testing.T) {
	e := newEnv(t)
	_, authorToken := e.user(models.RoleUser, "")
	_, otherToken := e.user(models.RoleUser, "")
	_, staffToken := e.user(models.RoleInstructor, "")

	wine := models.Wine{Name: "Sancerre", Type: models.WineWhite}
	require.NoError(t, e.db.Create(&wine).Error)

	post := func() string {
		w := e.do(http.MethodPost, "/api/wines/"+wine.ID.String()+"/reviews", map[string]interface{}{"rating": 4}, authorToken)
		require.Contains(t, []int{http.StatusCreated, http.StatusOK}, w.Code, w.Body.String())
		return decode(t, w)["review"].(map[string]interface{})["id"].(string)
	}

	id := post()
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/api/reviews/"+id, nil, otherToken).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/reviews/"+id, nil, authorToken).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/reviews/"+id, nil, authorToken).Code)

	id = post()
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/reviews/"+id, nil, staffToken).Code)
}

func TestCourseReviews(t *testing.T) {
	e := newEnv(t)
	course := e.course(0)
	_, token := e.user(models.RoleUser, "")

	path := "/api/course-reviews/" + course.ID.String()
	w := e.do(http.MethodPost, path, map[string]interface{}{"rating": 5, "comment": "Lärorikt"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code, "reviewers must be enrolled")

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/enrollments/"+course.ID.String(), nil, token).Code)
	w = e.do(http.MethodPost, path, map[string]interface{}{"rating": 5, "comment": "Lärorikt"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 5, body["average_rating"])
	assert.Len(t, body["reviews"], 1)

	w = e.do(http.MethodGet, "/api/courses/"+course.Slug, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["review_count"])
}
