package dto

import (
	"testing"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

func intPtr(i int) *int {
	return &i
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "kind", Message: "is required"}
	if err.Error() != "kind: is required" {
		t.Errorf("Error() = %q, want %q", err.Error(), "kind: is required")
	}
}

func TestToMap(t *testing.T) {
	errs := []ValidationError{
		{Field: "media_id", Message: "is required"},
		{Field: "count", Message: "must be at least 1"},
	}
	m := ToMap(errs)
	if len(m) != 2 {
		t.Errorf("ToMap() returned %d items, want 2", len(m))
	}
	if m["count"] != "must be at least 1" {
		t.Errorf("ToMap()[count] = %q", m["count"])
	}
}

func TestToResponse(t *testing.T) {
	errs := []ValidationError{
		{Field: "media_id", Message: "is required"},
		{Field: "kind", Message: "invalid"},
	}
	expected := "media_id: is required; kind: invalid"
	if resp := ToResponse(errs); resp != expected {
		t.Errorf("ToResponse() = %q, want %q", resp, expected)
	}
}

func TestCreateJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      CreateJobRequest
		wantErrs int
	}{
		{"valid movie", CreateJobRequest{MediaID: "m1", Kind: "movie"}, 0},
		{"valid series with count", CreateJobRequest{MediaID: "s1", Kind: "series", Count: intPtr(3)}, 0},
		{"missing media id", CreateJobRequest{Kind: "movie"}, 1},
		{"missing kind", CreateJobRequest{MediaID: "m1"}, 1},
		{"unknown kind", CreateJobRequest{MediaID: "m1", Kind: "album"}, 1},
		{"zero count", CreateJobRequest{MediaID: "s1", Kind: "series", Count: intPtr(0)}, 1},
		{"bad artwork url", CreateJobRequest{MediaID: "m1", Kind: "movie", ArtworkURL: "not a url"}, 1},
		{"everything wrong", CreateJobRequest{Kind: "album", Count: intPtr(-1)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			if len(errs) != tt.wantErrs {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.wantErrs, errs)
			}
		})
	}
}

func TestCreateJobRequest_DesiredCount(t *testing.T) {
	if c := (&CreateJobRequest{}).DesiredCount(); c != 1 {
		t.Errorf("DesiredCount() = %d, want 1", c)
	}
	if c := (&CreateJobRequest{Count: intPtr(4)}).DesiredCount(); c != 4 {
		t.Errorf("DesiredCount() = %d, want 4", c)
	}
}

func TestCountRequest_Validate(t *testing.T) {
	if errs := (&CountRequest{Count: intPtr(0)}).Validate(); len(errs) != 0 {
		t.Errorf("zero count should be allowed, got %v", errs)
	}
	if errs := (&CountRequest{}).Validate(); len(errs) != 1 {
		t.Errorf("missing count should fail, got %v", errs)
	}
	if errs := (&CountRequest{Count: intPtr(-2)}).Validate(); len(errs) != 1 {
		t.Errorf("negative count should fail, got %v", errs)
	}
}

func TestNewJobResponse(t *testing.T) {
	resp := NewJobResponse(domain.UIJob{
		JobID:   "j1",
		Kind:    domain.MediaKindSeries,
		Status:  domain.DownloadStatusRunning,
		Percent: 42.5,
		Files:   4,
	})
	if resp.ID != "j1" || resp.Kind != "series" || resp.Status != "running" || resp.Progress != 42.5 {
		t.Errorf("unexpected response %+v", resp)
	}
	if list := NewJobListResponse(nil); list == nil || len(list) != 0 {
		t.Errorf("empty list should encode as [], got %v", list)
	}
}
