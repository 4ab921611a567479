package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"venue-ledger-api/internal/middleware"
	"venue-ledger-api/internal/models"
)

var (
	admins      = []models.Role{models.RoleVenueAdmin, models.RoleMainAdmin}
	topUpRoles  = append([]models.Role{models.RoleBar, models.RoleSecurity, models.RoleDoor}, admins...)
	notifyRoles = append([]models.Role{models.RoleBar, models.RoleRunner, models.RoleSecurity}, admins...)
	orderViewer = append([]models.Role{models.RoleBar}, admins...)
)

// Routes mounts the API on r. protected runs, in order, in front of every
// route that needs a principal; the first one must authenticate.
//
// Some paths take a venue id for GET and an entity id for writes. chi needs
// one parameter name per segment, so both are read from {id}.
func (h *Handler) Routes(r chi.Router, protected ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)
	r.Post("/guest/checkin", h.CheckIn)

	r.Group(func(r chi.Router) {
		r.Use(protected...)
		role := middleware.RequireRole

		r.Get("/me", h.Me)
		r.Get("/me/profile", h.Me)
		r.Get("/me/history", h.History)
		r.Post("/guest/checkout", h.CheckOut)
		r.Get("/headcount/{venue_id}", h.Headcount)

		r.With(role(topUpRoles...)).Post("/wallet/topup", h.TopUp)

		r.Route("/orders", func(r chi.Router) {
			r.With(role(models.RoleBar)).Post("/", h.CreateOrder)
			r.With(role(orderViewer...)).Get("/{id}", h.ListOrders)
			r.With(role(models.RoleBar)).Delete("/{id}", h.UndoOrder)
		})

		r.Route("/inventory/{venue_id}", func(r chi.Router) {
			r.Get("/", h.ListInventory)
			r.With(role(admins...)).Post("/", h.CreateInventoryItem)
			r.With(role(admins...)).Put("/{id}", h.UpdateInventoryItem)
			r.With(role(admins...)).Post("/{id}/restock", h.Restock)
			r.With(role(models.RoleBar)).Post("/{id}/sell", h.Sell)
		})

		r.Route("/quests", func(r chi.Router) {
			r.Get("/{id}", h.ListQuests)
			r.Post("/{id}/complete", h.CompleteQuest)
			r.With(role(admins...)).Post("/", h.CreateQuest)
			r.With(role(admins...)).Put("/{id}", h.UpdateQuest)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(role(admins...))
			r.Get("/{id}", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/evaluate", h.EvaluateRules)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeleteRule)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.With(role(notifyRoles...)).Post("/", h.CreateNotification)
			r.Put("/{id}/read", h.MarkNotificationRead)
		})

		r.Get("/logs/{venue_id}", h.ListLogs)
		r.Post("/logs", h.CreateLog)

		r.With(role(admins...)).Post("/users", h.CreateUser)
		r.With(role(admins...)).Get("/venues", h.ListVenues)
		r.With(role(models.RoleMainAdmin)).Post("/venues", h.CreateVenue)
	})
}
