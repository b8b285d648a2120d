package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	"github.com/noah-isme/absensi-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/absensi-enrollment-api/pkg/errors"
)

type stubOccupancyReader struct {
	occupancy *models.ClassOccupancy
	err       error
}

func (s *stubOccupancyReader) Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.occupancy, nil
}

type stubAvailabilityLister struct {
	students  []models.Student
	err       error
	lastQuery service.AvailabilityQuery
}

func (s *stubAvailabilityLister) ListAvailable(ctx context.Context, classID string, query service.AvailabilityQuery) ([]models.Student, *models.Pagination, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.students, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: len(s.students)}, nil
}

func buildClassRouter(occupancy *stubOccupancyReader, availability *stubAvailabilityLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewClassHandler(occupancy, availability)
	router.GET("/classes/:id/occupancy", h.Occupancy)
	router.GET("/classes/:id/available-students", h.AvailableStudents)
	return router
}

func TestClassHandlerOccupancy(t *testing.T) {
	occupancy := &stubOccupancyReader{occupancy: &models.ClassOccupancy{ClassID: "class-1", Enrolled: 28, Max: 30}}
	router := buildClassRouter(occupancy, &stubAvailabilityLister{})

	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/occupancy", nil)
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"enrolled":28`)
	assert.Contains(t, resp.Body.String(), `"max":30`)
}

func TestClassHandlerOccupancyNotFound(t *testing.T) {
	occupancy := &stubOccupancyReader{err: appErrors.Clone(appErrors.ErrNotFound, "class not found")}
	router := buildClassRouter(occupancy, &stubAvailabilityLister{})

	req, _ := http.NewRequest(http.MethodGet, "/classes/ghost/occupancy", nil)
	resp := performRequest(router, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestClassHandlerAvailableStudents(t *testing.T) {
	availability := &stubAvailabilityLister{students: []models.Student{
		{ID: "stu-1", NIM: "2021001", FullName: "Budi Santoso", Active: true},
	}}
	router := buildClassRouter(&stubOccupancyReader{}, availability)

	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/available-students?search=budi&page=2&limit=10", nil)
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"Budi Santoso"`)
	assert.Equal(t, "budi", availability.lastQuery.Search)
	assert.Equal(t, 2, availability.lastQuery.Page)
	assert.Equal(t, 10, availability.lastQuery.PageSize)
}
