package dto

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) ToMap() map[string]string {
	return map[string]string{e.Field: e.Message}
}

func ToMap(errs []ValidationError) map[string]string {
	result := make(map[string]string)
	for _, e := range errs {
		result[e.Field] = e.Message
	}
	return result
}

func ToResponse(errs []ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func validateRequired(field, value string) []ValidationError {
	if strings.TrimSpace(value) == "" {
		return []ValidationError{{Field: field, Message: "is required"}}
	}
	return nil
}

func validateKind(kind string) []ValidationError {
	if kind == "" {
		return []ValidationError{{Field: "kind", Message: "is required"}}
	}
	if !domain.MediaKind(kind).Valid() {
		return []ValidationError{{Field: "kind", Message: "must be one of: movie, series, episode, playlist"}}
	}
	return nil
}

func validateURL(field, urlVal string) []ValidationError {
	if urlVal == "" {
		return nil
	}
	u, err := url.ParseRequestURI(urlVal)
	if err != nil || u.Host == "" {
		return []ValidationError{{Field: field, Message: "invalid URL format"}}
	}
	return nil
}

func validateCount(count *int, allowZero bool) []ValidationError {
	if count == nil {
		return []ValidationError{{Field: "count", Message: "is required"}}
	}
	if *count < 0 || (!allowZero && *count == 0) {
		lowest := 1
		if allowZero {
			lowest = 0
		}
		return []ValidationError{{Field: "count", Message: fmt.Sprintf("must be at least %d", lowest)}}
	}
	return nil
}
