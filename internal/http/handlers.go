package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fyrsmithlabs/codefixd/internal/remediation"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxBodyBytes bounds POST /local_fix bodies.
const maxBodyBytes = 1 << 20

// localFixFields are the required keys of a POST /local_fix body, in
// reporting order. Keys match exactly.
var localFixFields = []string{"language", "cwe", "code"}

// ValidationError describes one rejected field.
type ValidationError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationResponse is the 422 body.
type ValidationResponse struct {
	Detail []ValidationError `json:"detail"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Recipes int    `json:"recipes"`
}

func (s *Server) handleHealth(c echo.Context) error {
	recipes := 0
	if s.recipes != nil {
		recipes = s.recipes.Len()
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Model:   s.fixer.Model(),
		Recipes: recipes,
	})
}

func (s *Server) handleLocalFix(c echo.Context) error {
	ctx := c.Request().Context()

	fields, err := decodeObject(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: []ValidationError{verr}})
		}
		s.logger.Warn(ctx, "invalid local_fix request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	values, problems := requiredStrings(fields, localFixFields)
	if len(problems) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: problems})
	}

	resp, err := s.fixer.Fix(ctx, remediation.Request{
		Language: values["language"],
		CWE:      values["cwe"],
		Code:     values["code"],
	})
	if err != nil {
		// Details are in the service log; callers get a generic error.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, resp)
}

func (e ValidationError) Error() string {
	return e.Msg
}

// decodeObject reads exactly one JSON object. An empty body yields no
// fields. A non-object value is a ValidationError; trailing data and
// syntax errors are plain errors.
func decodeObject(r io.Reader) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(r)

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ValidationError{
			Loc:  []string{"body"},
			Msg:  "Input should be a valid dictionary or object to extract fields from",
			Type: "model_type",
		}
	}
	return fields, nil
}

// requiredStrings extracts each named field as a string, reporting every
// missing or non-string field.
func requiredStrings(fields map[string]json.RawMessage, names []string) (map[string]string, []ValidationError) {
	values := make(map[string]string, len(names))
	var problems []ValidationError
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			problems = append(problems, ValidationError{
				Loc:  []string{"body", name},
				Msg:  "Field required",
				Type: "missing",
			})
			continue
		}
		var v string
		if string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
			problems = append(problems, ValidationError{
				Loc:  []string{"body", name},
				Msg:  "Input should be a valid string",
				Type: "string_type",
			})
			continue
		}
		values[name] = v
	}
	return values, problems
}
