package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/speculate/internal/speculative"
)

func writeBadRequest(c *echo.Context, err error) error {
	body := ErrorBody{Message: err.Error(), Type: "invalid_request_error"}
	var rerr *RequestError
	if errors.As(err, &rerr) {
		body.Param = rerr.Param
	}
	return c.JSON(http.StatusBadRequest, map[string]any{"error": body})
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorBody{
			Message: msg,
			Type:    errType,
			Code:    code,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func toStats(st speculative.Stats) *GenerationStats {
	return &GenerationStats{
		TokensGenerated:    st.TokensGenerated,
		Iterations:         st.Iterations,
		Drafted:            st.Drafted,
		Accepted:           st.Accepted,
		AcceptanceRate:     st.AcceptanceRate,
		BonusTokens:        st.BonusTokens,
		Rejections:         st.Rejections,
		FinalK:             st.FinalK,
		TokensPerIteration: st.TokensPerIteration,
		Barriers:           st.Barriers,
		DurationMS:         float64(st.Duration.Microseconds()) / 1000,
		TPS:                st.TPS,
	}
}
