package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	"github.com/noah-isme/absensi-enrollment-api/internal/service"
	"github.com/noah-isme/absensi-enrollment-api/pkg/response"
)

type occupancyReader interface {
	Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error)
}

type availabilityLister interface {
	ListAvailable(ctx context.Context, classID string, query service.AvailabilityQuery) ([]models.Student, *models.Pagination, error)
}

// ClassHandler exposes read endpoints scoped to a class section.
type ClassHandler struct {
	occupancy    occupancyReader
	availability availabilityLister
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(occupancy occupancyReader, availability availabilityLister) *ClassHandler {
	return &ClassHandler{occupancy: occupancy, availability: availability}
}

// Occupancy godoc
// @Summary Class occupancy against capacity
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/occupancy [get]
func (h *ClassHandler) Occupancy(c *gin.Context) {
	occupancy, err := h.occupancy.Occupancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy, nil)
}

// AvailableStudents godoc
// @Summary Students eligible to be added to the class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Param search query string false "Name or NIM substring"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/available-students [get]
func (h *ClassHandler) AvailableStudents(c *gin.Context) {
	query := service.AvailabilityQuery{Search: c.Query("search")}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.PageSize = size
	}

	students, pagination, err := h.availability.ListAvailable(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}
