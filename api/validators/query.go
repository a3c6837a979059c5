package validators

import (
	"fmt"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/payrecon-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter, falling back to def.
func ParseQueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be an integer", name))
	}
	return value, nil
}
