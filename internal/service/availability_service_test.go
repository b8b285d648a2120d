package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/absensi-enrollment-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
	gets    int
	sets    int
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.gets++
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok || strings.HasPrefix(key, strings.TrimSuffix(pattern, "*")) {
			delete(m.entries, key)
		}
	}
	return nil
}

type fakeAvailableLister struct {
	students []models.Student
	calls    int
}

func (f *fakeAvailableLister) ListAvailable(ctx context.Context, search string, page, size int) ([]models.Student, int, error) {
	f.calls++
	if search == "" {
		return f.students, len(f.students), nil
	}
	var matched []models.Student
	for _, s := range f.students {
		if strings.Contains(strings.ToLower(s.FullName), strings.ToLower(search)) {
			matched = append(matched, s)
		}
	}
	return matched, len(matched), nil
}

type fakeClassReader struct {
	classes map[string]*models.Class
}

func (f *fakeClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := f.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func newTestAvailabilityService(lister *fakeAvailableLister) (*AvailabilityService, *memoryCacheRepo) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	classes := &fakeClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "XII IPA 1", MaxStudents: 30, Status: models.ClassStatusActive},
	}}
	return NewAvailabilityService(lister, classes, cache, nil), repo
}

func TestAvailabilityServiceListAvailable(t *testing.T) {
	lister := &fakeAvailableLister{students: []models.Student{
		{ID: "stu-1", NIM: "2021001", FullName: "Budi Santoso", Active: true},
		{ID: "stu-2", NIM: "2021002", FullName: "Siti Aminah", Active: true},
	}}
	svc, repo := newTestAvailabilityService(lister)

	students, pagination, err := svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, 1, repo.sets)

	// Second identical query is served from cache.
	students, _, err = svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 1, lister.calls)
}

func TestAvailabilityServiceSearchKeysCacheSeparately(t *testing.T) {
	lister := &fakeAvailableLister{students: []models.Student{
		{ID: "stu-1", FullName: "Budi Santoso", Active: true},
		{ID: "stu-2", FullName: "Siti Aminah", Active: true},
	}}
	svc, _ := newTestAvailabilityService(lister)

	all, _, err := svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, _, err := svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{Search: "budi"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "stu-1", filtered[0].ID)
	assert.Equal(t, 2, lister.calls)
}

func TestAvailabilityServiceInvalidateCache(t *testing.T) {
	lister := &fakeAvailableLister{students: []models.Student{
		{ID: "stu-1", FullName: "Budi Santoso", Active: true},
	}}
	svc, repo := newTestAvailabilityService(lister)

	_, _, err := svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{})
	require.NoError(t, err)
	assert.Len(t, repo.entries, 1)

	svc.InvalidateCache(context.Background())
	assert.Empty(t, repo.entries)

	// A fresh query hits the lister again after invalidation.
	_, _, err = svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestAvailabilityServiceClassNotFound(t *testing.T) {
	svc, _ := newTestAvailabilityService(&fakeAvailableLister{})

	_, _, err := svc.ListAvailable(context.Background(), "ghost", AvailabilityQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityServiceCacheDisabled(t *testing.T) {
	lister := &fakeAvailableLister{students: []models.Student{
		{ID: "stu-1", FullName: "Budi Santoso", Active: true},
	}}
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, false)
	classes := &fakeClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Status: models.ClassStatusActive, MaxStudents: 30},
	}}
	svc := NewAvailabilityService(lister, classes, cache, nil)

	for i := 0; i < 2; i++ {
		_, _, err := svc.ListAvailable(context.Background(), "class-1", AvailabilityQuery{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, lister.calls)
	assert.Zero(t, repo.sets)
}
