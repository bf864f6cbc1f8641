package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/airframesio/report-archiver/cmd/pipeline"
	"github.com/airframesio/report-archiver/cmd/report"
)

// exportBody is the export request. The camelCase aliases are what the
// operator portal sends.
type exportBody struct {
	Start          string `json:"start"`
	StartDate      string `json:"startDate"`
	End            string `json:"end"`
	EndDate        string `json:"endDate"`
	CloseCycle     *bool  `json:"closeCycle"`
	IsClosingRound *bool  `json:"isClosingRound"`
	Format         string `json:"format"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseBound accepts a calendar day or an RFC 3339 timestamp
func parseBound(value string, endOfDay bool) (time.Time, error) {
	if len(value) == len(report.DateLayout) {
		return report.ParseDay(value, endOfDay)
	}
	return time.Parse(time.RFC3339, value)
}

func (b exportBody) dateRange() (report.DateRange, error) {
	start := firstNonEmpty(b.Start, b.StartDate)
	end := firstNonEmpty(b.End, b.EndDate)
	if start == "" || end == "" {
		return report.DateRange{}, report.ErrRangeRequired
	}

	s, err := parseBound(start, false)
	if err != nil {
		return report.DateRange{}, err
	}
	e, err := parseBound(end, true)
	if err != nil {
		return report.DateRange{}, err
	}
	return report.DateRange{Start: s, End: e}, nil
}

func (b exportBody) closeCycle() bool {
	if b.CloseCycle != nil {
		return *b.CloseCycle
	}
	return b.IsClosingRound != nil && *b.IsClosingRound
}

const functionsPrefix = "/functions/v1"

// exportRoute is the endpoint path serving one report kind, e.g.
// /functions/v1/export-work-performance
func exportRoute(kind report.Kind) string {
	return functionsPrefix + "/export-" + strings.ReplaceAll(string(kind), "_", "-")
}

type server struct {
	pipeline      *pipeline.Pipeline
	verifier      *tokenVerifier
	hub           *progressHub
	defaultFormat string
	logger        *slog.Logger
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(pipeline.HTTPStatus(err), gin.H{"error": pipeline.UserMessage(err)})
}

// corsConfig mirrors the headers the portal's edge functions allowed
func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"authorization", "x-client-info", "apikey", "content-type"},
		ExposeHeaders: []string{"Content-Disposition", "X-Archive-Key", "X-Invocation-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return config
}

func newRouter(s *server, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})

	api := router.Group(functionsPrefix, s.requireAuth())
	for _, kind := range []report.Kind{report.KindSatisfaction, report.KindWorkPerformance} {
		api.POST(strings.TrimPrefix(exportRoute(kind), functionsPrefix), s.handleExport(kind))
	}
	api.GET("/satisfaction-summary", s.handleSummary)

	router.GET("/ws/progress", s.requireAuth(), func(c *gin.Context) {
		s.hub.serveWebSocket(c.Writer, c.Request)
	})

	return router
}

// contentDisposition carries an ASCII fallback plus the RFC 5987 UTF-8 name
func contentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return -1
		}
		return r
	}, filename)
	if fallback != filename {
		fallback = "report" + path.Ext(filename)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, url.PathEscape(filename))
}

func (s *server) handleExport(kind report.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body exportBody
		if err := c.ShouldBindJSON(&body); err != nil {
			abortWithError(c, fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, err))
			return
		}

		rng, err := body.dateRange()
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, err))
			return
		}

		req := pipeline.Request{
			Kind:       kind,
			Range:      rng,
			Format:     strings.ToLower(firstNonEmpty(body.Format, s.defaultFormat)),
			CloseCycle: body.closeCycle(),
		}

		subject := c.GetString(subjectKey)
		if req.CloseCycle {
			s.logger.Info(fmt.Sprintf("🔒 Close-cycle for %s requested by %s", kind, subject))
		}

		result, err := s.pipeline.Run(c.Request.Context(), req)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error(fmt.Sprintf("❌ Export %s for %s failed: %v", kind, subject, err))
			}
			var purgeErr *pipeline.PurgeError
			if errors.As(err, &purgeErr) {
				c.Header("X-Archive-Key", purgeErr.ArchiveKey)
			}
			abortWithError(c, err)
			return
		}

		c.Header("Content-Disposition", contentDisposition(result.Artifact.Filename))
		c.Header("X-Invocation-Id", result.InvocationID)
		if result.ArchiveKey != "" {
			c.Header("X-Archive-Key", result.ArchiveKey)
		}
		c.Data(http.StatusOK, result.Artifact.ContentType, result.Artifact.Body)
	}
}

func (s *server) handleSummary(c *gin.Context) {
	body := exportBody{
		Start:     c.Query("start"),
		StartDate: c.Query("startDate"),
		End:       c.Query("end"),
		EndDate:   c.Query("endDate"),
	}
	rng, err := body.dateRange()
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, err))
		return
	}

	summary, err := s.pipeline.Summary(c.Request.Context(), rng)
	if err != nil {
		s.logger.Error(fmt.Sprintf("❌ Satisfaction summary failed: %v", err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
