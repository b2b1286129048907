package api

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/lambdachat/internal/api/middleware"
	"github.com/themobileprof/lambdachat/internal/chat"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// PageHandler renders the browser chat interface
type PageHandler struct {
	engine *chat.Engine
	stream bool
	title  string
}

func NewPageHandler(engine *chat.Engine, stream bool) *PageHandler {
	return &PageHandler{engine: engine, stream: stream, title: "Lambda Chat"}
}

// RegisterRoutes installs the page template, static assets and the index route
func (h *PageHandler) RegisterRoutes(r *gin.Engine, sessions gin.HandlerFunc) {
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.StaticFS("/static", http.FS(static))

	r.GET("/", sessions, h.Index)
}

func (h *PageHandler) Index(c *gin.Context) {
	sess, err := h.engine.History(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.HTML(http.StatusOK, "chat.html", gin.H{
		"Title":         h.title,
		"Messages":      sess.Messages,
		"InputEnabled":  sess.InputEnabled,
		"MaxInputChars": h.engine.MaxInputChars(),
		"Stream":        h.stream,
	})
}
