package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5"
)

// Repositories bundles the persistence collaborators the router wires into
// handlers. Interfaces so tests can substitute fakes.
type Repositories struct {
	Users    UserRepository
	Contacts ContactRepository
	Deals    DealRepository
	Tickets  TicketRepository
}

// NewRouter constructs the Gin engine with routes wired.
// Global middleware order matters: request logging first, then origin/CORS,
// then CSRF, then the security inspection of the raw body. Only after all
// four does a request reach routing logic.
func NewRouter(cfg Config, store *sessions.CookieStore, authService *AuthService, repos Repositories, audit *slog.Logger, threats *ThreatMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware())
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(CSRFMiddleware(cfg, store))

	var recorder ThreatRecorder
	if threats != nil {
		recorder = threats
	}
	r.Use(SecurityMiddleware(cfg, audit, recorder))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	auth := api.Group("/authentication")
	{
		auth.POST("/login", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			pair, err := authService.Login(c.Request.Context(), req.Email, req.Password)
			if err != nil {
				// Wrong email and wrong password are indistinguishable on purpose.
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "email or password is incorrect")
				return
			}

			setAuthCookies(c, cfg, pair)
			c.JSON(http.StatusOK, gin.H{"message": "Login is successful."})
		})

		auth.POST("/register", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			id, err := authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
			if err != nil {
				if errors.Is(err, ErrUserExists) {
					respondError(c, http.StatusConflict, "CONFLICT", "username or email already exists")
					return
				}
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}

			c.JSON(http.StatusCreated, gin.H{
				"id":       id,
				"username": strings.TrimSpace(req.Username),
				"email":    strings.TrimSpace(req.Email),
			})
		})

		auth.POST("/verify", func(c *gin.Context) {
			accessToken, _ := c.Cookie(AccessTokenCookie)
			refreshToken, _ := c.Cookie(RefreshTokenCookie)

			user, err := authService.VerifySession(c.Request.Context(), accessToken, refreshToken)
			if err != nil {
				status, code, message := authErrorStatus(err)
				respondError(c, status, code, message)
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"user":    gin.H{"username": user.Username, "email": user.Email},
			})
		})

		auth.POST("/logout", func(c *gin.Context) {
			clearAuthCookies(c, cfg)
			c.JSON(http.StatusOK, gin.H{"message": "You are logged out."})
		})
	}

	user := api.Group("/user")
	user.Use(AuthRequired(authService))
	{
		user.PUT("/profile", func(c *gin.Context) {
			u, _ := currentUser(c)
			var req struct {
				Username string `json:"username"`
				Email    string `json:"email"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			username := firstNonEmpty(strings.TrimSpace(req.Username), u.Username)
			email := firstNonEmpty(strings.TrimSpace(req.Email), u.Email)

			ctx := c.Request.Context()
			record, err := repos.Users.UpdateProfile(ctx, u.ID, username, email)
			if err != nil {
				if isUniqueViolation(err) {
					respondError(c, http.StatusConflict, "CONFLICT", "username or email already exists")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update profile")
				return
			}
			c.JSON(http.StatusOK, gin.H{"username": record.Username, "email": record.Email})
		})

		user.PUT("/password", func(c *gin.Context) {
			u, _ := currentUser(c)
			var req struct {
				CurrentPassword string `json:"current_password"`
				NewPassword     string `json:"new_password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if req.CurrentPassword == "" || req.NewPassword == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "current_password and new_password are required")
				return
			}

			ctx := c.Request.Context()
			record, err := repos.Users.FindByID(ctx, u.ID)
			if err != nil || record == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
				return
			}
			if !CheckPassword(req.CurrentPassword, record.PasswordHash) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "current password is incorrect")
				return
			}

			hash, err := HashPassword(req.NewPassword)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hash password")
				return
			}
			if err := repos.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to change password")
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": "Password changed."})
		})

		user.DELETE("/account", func(c *gin.Context) {
			u, _ := currentUser(c)
			if err := repos.Users.Delete(c.Request.Context(), u.ID); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete account")
				return
			}
			clearAuthCookies(c, cfg)
			c.Status(http.StatusNoContent)
		})
	}

	contact := api.Group("/contact")
	contact.Use(AuthRequired(authService))
	{
		contact.POST("", func(c *gin.Context) {
			u, _ := currentUser(c)
			var req struct {
				FirstName string `json:"first_name"`
				LastName  string `json:"last_name"`
				Email     string `json:"email"`
				Phone     string `json:"phone"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.Email) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "first_name and email are required")
				return
			}
			created, err := repos.Contacts.Create(c.Request.Context(), u.ID, req.FirstName, req.LastName, req.Email, req.Phone)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create contact")
				return
			}
			c.JSON(http.StatusCreated, created)
		})

		contact.GET("", func(c *gin.Context) {
			u, _ := currentUser(c)
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := repos.Contacts.List(c.Request.Context(), u.ID, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch contacts")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		contact.GET("/:id", func(c *gin.Context) {
			u, _ := currentUser(c)
			id, ok := parseID(c)
			if !ok {
				return
			}
			found, err := repos.Contacts.Get(c.Request.Context(), id, u.ID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "contact not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch contact")
				return
			}
			c.JSON(http.StatusOK, found)
		})

		contact.PUT("/:id", func(c *gin.Context) {
			u, _ := currentUser(c)
			id, ok := parseID(c)
			if !ok {
				return
			}
			var req struct {
				FirstName string `json:"first_name"`
				LastName  string `json:"last_name"`
				Email     string `json:"email"`
				Phone     string `json:"phone"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx := c.Request.Context()
			// Partial update: unspecified fields keep current values.
			current, err := repos.Contacts.Get(ctx, id, u.ID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "contact not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch contact")
				return
			}
			updated, err := repos.Contacts.Update(ctx, id, u.ID,
				firstNonEmpty(strings.TrimSpace(req.FirstName), current.FirstName),
				firstNonEmpty(strings.TrimSpace(req.LastName), current.LastName),
				firstNonEmpty(strings.TrimSpace(req.Email), current.Email),
				firstNonEmpty(strings.TrimSpace(req.Phone), current.Phone),
			)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update contact")
				return
			}
			c.JSON(http.StatusOK, updated)
		})

		contact.DELETE("/:id", func(c *gin.Context) {
			u, _ := currentUser(c)
			id, ok := parseID(c)
			if !ok {
				return
			}
			if err := repos.Contacts.Delete(c.Request.Context(), id, u.ID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "contact not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete contact")
				return
			}
			c.Status(http.StatusNoContent)
		})
	}

	deal := api.Group("/deal")
	deal.Use(AuthRequired(authService))
	{
		deal.POST("", func(c *gin.Context) {
			var req struct {
				Title     string  `json:"title"`
				Amount    float64 `json:"amount"`
				Status    string  `json:"status"`
				ContactID int64   `json:"contact_id"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Title) == "" || req.ContactID <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and contact_id are required")
				return
			}
			if strings.TrimSpace(req.Status) == "" {
				req.Status = "open"
			}
			created, err := repos.Deals.Create(c.Request.Context(), req.Title, req.Amount, req.Status, req.ContactID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create deal")
				return
			}
			c.JSON(http.StatusCreated, created)
		})

		deal.GET("", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := repos.Deals.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch deals")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		deal.GET("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			found, err := repos.Deals.Get(c.Request.Context(), id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "deal not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch deal")
				return
			}
			c.JSON(http.StatusOK, found)
		})

		deal.PUT("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			var req struct {
				Title  string  `json:"title"`
				Amount float64 `json:"amount"`
				Status string  `json:"status"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx := c.Request.Context()
			current, err := repos.Deals.Get(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "deal not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch deal")
				return
			}
			amount := req.Amount
			if amount == 0 {
				amount = current.Amount
			}
			updated, err := repos.Deals.Update(ctx, id,
				firstNonEmpty(strings.TrimSpace(req.Title), current.Title),
				amount,
				firstNonEmpty(strings.TrimSpace(req.Status), current.Status),
			)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update deal")
				return
			}
			c.JSON(http.StatusOK, updated)
		})

		deal.DELETE("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			if err := repos.Deals.Delete(c.Request.Context(), id); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "deal not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete deal")
				return
			}
			c.Status(http.StatusNoContent)
		})
	}

	ticket := api.Group("/ticket")
	ticket.Use(AuthRequired(authService))
	{
		ticket.POST("", func(c *gin.Context) {
			u, _ := currentUser(c)
			var req struct {
				Subject string `json:"subject"`
				Message string `json:"message"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Message) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "subject and message are required")
				return
			}
			created, err := repos.Tickets.Create(c.Request.Context(), u.ID, req.Subject, req.Message)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create ticket")
				return
			}
			c.JSON(http.StatusCreated, created)
		})

		ticket.GET("", func(c *gin.Context) {
			u, _ := currentUser(c)
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := repos.Tickets.ListByUser(c.Request.Context(), u.ID, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch tickets")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		ticket.GET("/all", AdminOnly(), func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := repos.Tickets.ListAll(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch tickets")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		ticket.GET("/:id", func(c *gin.Context) {
			u, _ := currentUser(c)
			id, ok := parseID(c)
			if !ok {
				return
			}
			found, err := repos.Tickets.Get(c.Request.Context(), id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "ticket not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch ticket")
				return
			}
			// No existence leak across owners.
			if found.UserID != u.ID && u.Role != RoleAdmin {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "ticket not found")
				return
			}
			c.JSON(http.StatusOK, found)
		})
	}

	admin := api.Group("/admin")
	admin.Use(AuthRequired(authService), AdminOnly())
	{
		admin.GET("/metrics/security", func(c *gin.Context) {
			if threats == nil {
				respondError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "security metrics not configured")
				return
			}
			totals, err := threats.Totals(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load security metrics")
				return
			}
			c.JSON(http.StatusOK, gin.H{"detections": totals})
		})
	}

	return r
}

// parseID reads a positive int64 path id or writes a validation error.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	return id, true
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
