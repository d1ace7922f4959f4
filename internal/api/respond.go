package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/ec-store/internal/infrastructure/store"
)

const maxJSONBody = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errPayloadTooLarge
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

// pageResponse is the listing envelope shared by every paginated endpoint.
type pageResponse[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
}

func newPageResponse[T any](p store.Page[T]) pageResponse[T] {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return pageResponse[T]{
		Content:       items,
		TotalElements: p.Total,
		TotalPages:    p.TotalPages(),
		Page:          p.Page,
		Size:          p.Size,
	}
}

// pageParams reads page and size from the query string.
func pageParams(r *http.Request) (store.PageRequest, error) {
	var req store.PageRequest
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("%w: page must be a non-negative integer", errBadRequest)
		}
		if n > store.MaxPage {
			return req, fmt.Errorf("%w: page must be at most %d", errBadRequest, store.MaxPage)
		}
		req.Page = n
	}
	if v := strings.TrimSpace(q.Get("size")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, fmt.Errorf("%w: size must be a positive integer", errBadRequest)
		}
		req.Size = n
	}
	return req.Normalize(), nil
}

func productID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid product id %q", errBadRequest, raw)
	}
	return id, nil
}

func optionalBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a boolean", errBadRequest, raw)
	}
	return &b, nil
}
