package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode"

	"welcomemat/internal/middleware"
	"welcomemat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit     = 100
	defaultPaginationLimit = 20
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	if defaultLimit <= 0 {
		defaultLimit = defaultPaginationLimit
	}
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "profileId" -> "profile ID", "invitationId" -> "invitation ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// currentUserID returns the user set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	uid, _ := c.Locals("userID").(uint)
	return uid
}

// mapServiceError converts an AppError code into the HTTP status it is answered with.
func mapServiceError(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondServiceError writes err with the status mapServiceError picks. Errors without a
// code are logged and answered as internal errors.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := mapServiceError(err)
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		if !models.HasCode(err, models.CodeInternal) {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

// RouteURL resolves a named route to its path, substituting :params from params.
// Every parameter of the route must be supplied.
func RouteURL(app *fiber.App, name string, params fiber.Map) (string, error) {
	route := app.GetRoute(name)
	if route.Name != name || route.Path == "" {
		return "", fmt.Errorf("unknown route %q", name)
	}

	segments := strings.Split(route.Path, "/")
	for i, seg := range segments {
		if seg == "*" || seg == "+" {
			v, ok := params[seg]
			if !ok {
				return "", fmt.Errorf("route %q: missing wildcard", name)
			}
			segments[i] = fmt.Sprint(v)
			continue
		}
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(seg, ":"), "?")
		v, ok := params[key]
		if !ok {
			return "", fmt.Errorf("route %q: missing parameter %q", name, key)
		}
		segments[i] = url.PathEscape(fmt.Sprint(v))
	}
	return strings.Join(segments, "/"), nil
}

// routeURL is RouteURL for the app serving c. Resolution failures are logged and yield "".
func routeURL(c *fiber.Ctx, name string, params fiber.Map) string {
	u, err := RouteURL(c.App(), name, params)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "route url unresolved",
			slog.String("route", name), slog.String("error", err.Error()))
		return ""
	}
	return u
}

// tokenTTL is how long the caller's access token has left.
func tokenTTL(c *fiber.Ctx) time.Duration {
	exp, ok := c.Locals("tokenExpiresAt").(time.Time)
	if !ok {
		return 0
	}
	return time.Until(exp)
}
