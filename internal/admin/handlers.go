// internal/admin/handlers.go
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	"github.com/cmatc13/p2pservice/pkg/errors"
	"github.com/cmatc13/p2pservice/pkg/service"
)

// ServiceView is the API representation of a service.
type ServiceView struct {
	Name     string         `json:"name"`
	ID       string         `json:"id"`
	Status   service.Status `json:"status"`
	Running  bool           `json:"running"`
	Children []string       `json:"children,omitempty"`
}

func viewOf(svc *service.Service) ServiceView {
	view := ServiceView{
		Name:    svc.Name(),
		ID:      svc.ID().String(),
		Status:  svc.Status(),
		Running: svc.IsRunning(),
	}
	for _, child := range svc.Children() {
		view.Children = append(view.Children, child.Name())
	}
	return view
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	s.renderJSON(w, Response{
		Success: true,
		Data: map[string]interface{}{
			"id":             s.cfg.NodeID,
			"name":           s.cfg.NodeName,
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
		},
	}, http.StatusOK)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	all := s.services.All()
	views := make([]ServiceView, 0, len(all))
	for _, svc := range all {
		views = append(views, viewOf(svc))
	}
	s.renderJSON(w, Response{Success: true, Data: views}, http.StatusOK)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.services.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.renderError(w, err.Error(), http.StatusNotFound)
		return
	}
	s.renderJSON(w, Response{Success: true, Data: viewOf(svc)}, http.StatusOK)
}

// handleCancelService cancels one service and waits for its cleanup up to the
// service's grace period. A cancel that reaches the admin service, directly or
// through an ancestor, is acknowledged with 202 and runs in the background.
func (s *Server) handleCancelService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	svc, err := s.services.Get(name)
	if err != nil {
		s.renderError(w, err.Error(), http.StatusNotFound)
		return
	}

	_, claims, _ := jwtauth.FromContext(r.Context())
	logger := s.service.Logger().WithField("target", name)
	logger.Info("Cancel requested through admin API", "subject", claims["sub"])

	// Waiting here would hold the request that the server's own shutdown is
	// waiting for, whenever the cancel reaches the admin service.
	if s.service.CancelToken().DerivesFrom(svc.CancelToken()) {
		go func() {
			if err := svc.Cancel(context.Background()); err != nil {
				logger.WithError(err).Warn("Admin API cancel did not complete")
			}
		}()
		s.renderJSON(w, Response{Success: true, Message: "cancellation requested"}, http.StatusAccepted)
		return
	}

	err = svc.Cancel(r.Context())
	switch {
	case err == nil:
		s.renderJSON(w, Response{Success: true, Message: "service cancelled", Data: viewOf(svc)}, http.StatusOK)
	case errors.IsTimeout(err):
		s.renderJSON(w, Response{
			Success: true,
			Message: "cancellation requested, cleanup still running",
			Data:    viewOf(svc),
		}, http.StatusAccepted)
	case errors.IsContractViolation(err):
		s.renderError(w, err.Error(), http.StatusConflict)
	default:
		s.renderError(w, err.Error(), http.StatusInternalServerError)
	}
}
