package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
)

// APIError is the error payload carried in the response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client is a typed HTTP client for the enrollment API, used by admin
// console frontends and the Synchronizer.
type Client struct {
	http *resty.Client
}

// NewClient constructs a Client for the given base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient}
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *APIError          `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

// Enrollments returns the class roster.
func (c *Client) Enrollments(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("status", string(models.EnrollmentStatusActive)).
		Get(fmt.Sprintf("/classes/%s/enrollments", classID))
	if err != nil {
		return nil, err
	}
	var enrollments []models.EnrollmentDetail
	if err := decode(resp, &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

// AvailableStudents returns students addable to the class.
func (c *Client) AvailableStudents(ctx context.Context, classID, search string) ([]models.Student, error) {
	req := c.http.R().SetContext(ctx)
	if search != "" {
		req.SetQueryParam("search", search)
	}
	resp, err := req.Get(fmt.Sprintf("/classes/%s/available-students", classID))
	if err != nil {
		return nil, err
	}
	var students []models.Student
	if err := decode(resp, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// Occupancy returns the class's active count against capacity.
func (c *Client) Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/classes/%s/occupancy", classID))
	if err != nil {
		return nil, err
	}
	var occupancy models.ClassOccupancy
	if err := decode(resp, &occupancy); err != nil {
		return nil, err
	}
	return &occupancy, nil
}

// Enroll creates an enrollment on the server.
func (c *Client) Enroll(ctx context.Context, classID, studentID string) (*models.EnrollmentDetail, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"class_id": classID, "student_id": studentID}).
		Post("/enrollments")
	if err != nil {
		return nil, err
	}
	var enrollment models.EnrollmentDetail
	if err := decode(resp, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Unenroll removes an enrollment on the server.
func (c *Client) Unenroll(ctx context.Context, enrollmentID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/enrollments/%s", enrollmentID))
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

func decode(resp *resty.Response, out interface{}) error {
	if resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	var env envelope
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			if resp.IsError() {
				return &APIError{Code: "HTTP_ERROR", Status: resp.StatusCode(), Message: resp.Status()}
			}
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.IsError() {
		if env.Error != nil {
			return env.Error
		}
		return &APIError{Code: "HTTP_ERROR", Status: resp.StatusCode(), Message: resp.Status()}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
