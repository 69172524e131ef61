package vault

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vetrova/vaultkeep/internal/apperror"
	"github.com/vetrova/vaultkeep/internal/plugins/auth"
)

// Handler handles HTTP requests for the credential vault. Every route runs
// behind auth.RequireAuth, so a session is guaranteed; the vault key is
// fetched per request from the key store under the session token. A session
// without a key (Redis flush, expiry race) gets a 401 so the client can
// re-login and re-derive.
type Handler struct {
	service VaultService
	keys    KeyStore
}

// NewHandler creates a vault handler with the given service and key store.
func NewHandler(service VaultService, keys KeyStore) *Handler {
	return &Handler{service: service, keys: keys}
}

// sessionKey fetches the vault key bound to the current session.
func (h *Handler) sessionKey(c echo.Context) (string, error) {
	token := auth.GetSessionToken(c)
	if token == "" {
		return "", apperror.NewUnauthorized("authentication required")
	}

	key, ok, err := h.keys.Get(c.Request().Context(), token)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	if !ok {
		return "", apperror.NewUnauthorized("vault session expired, please log in again")
	}
	return key, nil
}

// List returns the user's decrypted records (GET /vault/records).
func (h *Handler) List(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	views, err := h.service.List(c.Request().Context(), auth.GetUserID(c), key)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"records": views})
}

// Create adds a record (POST /vault/records).
func (h *Handler) Create(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	view, err := h.service.Create(c.Request().Context(), auth.GetUserID(c), key, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, view)
}

// Update replaces a record's fields (PUT /vault/records/:id).
func (h *Handler) Update(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.Update(c.Request().Context(), auth.GetUserID(c), key, c.Param("id"), req); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

// Delete removes records in bulk and returns the remaining view
// (POST /vault/records/delete).
func (h *Handler) Delete(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	views, err := h.service.Delete(c.Request().Context(), auth.GetUserID(c), key, req.IDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"records": views})
}

// Search filters the decrypted view by a free-text query (POST /vault/search).
func (h *Handler) Search(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	views, err := h.service.Search(c.Request().Context(), auth.GetUserID(c), key, req.Q)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"records": views})
}

// Export streams the vault as a CSV download (GET /vault/export).
func (h *Handler) Export(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("vaultkeep-export-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Response().WriteHeader(http.StatusOK)

	return h.service.Export(c.Request().Context(), auth.GetUserID(c), key, c.Response())
}

// Import merges an uploaded CSV into the vault (POST /vault/import).
// The file arrives as multipart form field "file". With ?replace=true,
// imported rows overwrite matching existing records; otherwise matches
// are skipped and only new rows are added.
func (h *Handler) Import(c echo.Context) error {
	key, err := h.sessionKey(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apperror.NewBadRequest("csv file is required (multipart field 'file')")
	}
	if fileHeader.Size > 5<<20 {
		return apperror.NewBadRequest("csv file too large (5 MB max)")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apperror.NewBadRequest("could not read uploaded file")
	}
	defer file.Close()

	replaceExisting := c.QueryParam("replace") == "true"

	result, err := h.service.Import(c.Request().Context(), auth.GetUserID(c), key, file, replaceExisting)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Profile returns the session's account summary and record count
// (GET /vault/profile). No vault key needed -- nothing is decrypted.
func (h *Handler) Profile(c echo.Context) error {
	session := auth.GetSession(c)
	if session == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	count, err := h.service.Count(c.Request().Context(), session.UserID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"email":        session.Email,
		"username":     session.Username,
		"record_count": count,
	})
}
