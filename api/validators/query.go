package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
)

const maxOffset = 1_000_000

// Page is a limit/offset window read from the query string.
type Page struct {
	Limit  int
	Offset int
}

// ParseQueryInt reads an integer query parameter, falling back to defaultVal
// when absent.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParsePage reads limit and offset. limit defaults to defaultLimit and is
// capped at maxLimit.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) (Page, error) {
	limit, err := ParseQueryInt(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		return Page{}, err
	}
	offset, err := ParseQueryInt(r, "offset", 0, 0, maxOffset)
	if err != nil {
		return Page{}, err
	}
	return Page{Limit: limit, Offset: offset}, nil
}
