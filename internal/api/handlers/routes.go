package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Convert       *ConvertHandler
	Preprocessing *PreprocessingHandler
	Dictionary    *DictionaryHandler
	Documents     *DocumentHandler
	Evaluation    *EvaluationHandler
	WebSocket     *WebSocketHandler
}

// Register mounts every route on app. Nil handlers leave their routes
// unmounted.
func (h Handlers) Register(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	if h.Convert != nil {
		api.Post("/convert", h.Convert.Convert)
		api.Get("/history", h.Convert.History)
		api.Get("/history/:id", h.Convert.GetConversion)
		api.Post("/history/:id/feedback", h.Convert.Feedback)
		api.Get("/metadata", h.Convert.Metadata)
		api.Get("/sample-data", h.Convert.SampleData)
	}

	if h.Preprocessing != nil {
		api.Get("/preprocessing/status", h.Preprocessing.Status)
		api.Post("/preprocessing/test", h.Preprocessing.Test)
	}

	if d := h.Dictionary; d != nil {
		dict := api.Group("/dictionary")
		dict.Get("/status", d.Status)
		dict.Post("/reload", d.Reload)
		dict.Post("/backup", d.Backup)
		dict.Get("/terms", d.ListTerms)
		dict.Post("/terms", d.AddTerm)
		dict.Post("/terms/search", d.SearchTerms)
		dict.Put("/terms/:category/:term", d.UpdateTerm)
		dict.Delete("/terms/:category/:term", d.DeleteTerm)
		dict.Get("/sql-patterns", d.ListPatterns)
		dict.Post("/sql-patterns", d.AddPattern)
		dict.Put("/sql-patterns/:category/:korean", d.UpdatePattern)
		dict.Delete("/sql-patterns/:category/:korean", d.DeletePattern)
		dict.Get("/export", d.Export)
		dict.Post("/import", d.Import)
	}

	if d := h.Documents; d != nil {
		rag := api.Group("/rag")
		rag.Get("/domains", d.Domains)
		rag.Get("/documents", d.ListDocuments)
		rag.Post("/documents/:domain", d.UploadDocument)
		rag.Delete("/documents/:domain/:filename", d.DeleteDocument)
		rag.Get("/stats", d.Stats)
		rag.Post("/search", d.Search)
	}

	if h.Evaluation != nil {
		api.Get("/evaluation/usage", h.Evaluation.Usage)
		api.Post("/evaluation/run", h.Evaluation.Run)
	}

	if h.WebSocket != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/convert", websocket.New(h.WebSocket.HandleConnection))
	}
}
