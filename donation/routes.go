package donation

import (
	"errors"
	"io"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	"yipfoundation/receipt"
)

const maxWebhookBody = 65536

// RegisterRoutes wires the public donation endpoints, the Stripe webhook
// and the admin resend action.
func RegisterRoutes(r *router.Router[*core.RequestEvent], s *Service) {
	r.POST("/api/donations/checkout", s.checkoutRoute)
	r.GET("/api/donations/{ref}/status", s.statusRoute)
	r.GET("/api/receipts/{ref}/pdf", s.pdfRoute)
	r.POST("/stripe/webhook", s.webhookRoute)
	r.POST("/api/admin/receipts/{ref}/resend", s.resendRoute).Bind(apis.RequireSuperuserAuth())
}

func (s *Service) checkoutRoute(e *core.RequestEvent) error {
	var req CheckoutRequest
	if err := e.BindBody(&req); err != nil {
		return e.BadRequestError("Invalid request body.", err)
	}
	url, ref, err := s.Checkout(req)
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDonor), errors.Is(err, ErrUnknownProject):
		return e.BadRequestError(err.Error(), nil)
	case err != nil:
		s.logger().Error("checkout failed", "error", err)
		return e.InternalServerError("Unable to start checkout.", err)
	}
	return e.JSON(http.StatusOK, checkoutResponse{URL: url, PaymentReference: ref})
}

func (s *Service) statusRoute(e *core.RequestEvent) error {
	resp, err := s.Status(e.Request.PathValue("ref"))
	if errors.Is(err, receipt.ErrNotFound) {
		return e.NotFoundError("Donation not found.", err)
	}
	if err != nil {
		return e.InternalServerError("Unable to load donation.", err)
	}
	return e.JSON(http.StatusOK, resp)
}

func (s *Service) pdfRoute(e *core.RequestEvent) error {
	ref := e.Request.PathValue("ref")
	tokenRef, err := s.Links.Verify(e.Request.URL.Query().Get("token"))
	if err != nil || tokenRef != ref {
		return e.ForbiddenError("Invalid or expired receipt link.", err)
	}
	data, err := s.Assembler.Assemble(ref)
	if err != nil {
		return e.InternalServerError("Unable to load receipt.", err)
	}
	if data == nil {
		return e.NotFoundError("Receipt not available.", nil)
	}
	pdf, err := s.Renderer.Render(e.Request.Context(), data)
	if err != nil {
		s.logger().Error("receipt pdf render failed", "ref", ref, "error", err)
		return e.InternalServerError("Unable to render receipt.", err)
	}
	e.Response.Header().Set("Content-Disposition", `attachment; filename="`+data.Filename()+`"`)
	e.Response.Header().Set("Cache-Control", "private, no-store")
	return e.Blob(http.StatusOK, "application/pdf", pdf)
}

func (s *Service) webhookRoute(e *core.RequestEvent) error {
	payload, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return e.BadRequestError("Failed to read webhook body.", err)
	}
	event, err := s.ParseEvent(payload, e.Request.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger().Warn("stripe webhook rejected", "error", err)
		return e.BadRequestError("Invalid webhook signature.", err)
	}
	handled, err := s.HandleEvent(e.Request.Context(), event)
	if err != nil {
		s.logger().Error("stripe webhook processing failed", "event", event.ID, "type", event.Type, "error", err)
		return e.JSON(http.StatusOK, map[string]string{"status": "failed"})
	}
	if !handled {
		return e.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	return e.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (s *Service) resendRoute(e *core.RequestEvent) error {
	ref := e.Request.PathValue("ref")
	out, err := s.Issuer.Issue(e.Request.Context(), ref)
	switch {
	case errors.Is(err, receipt.ErrNotFound):
		return e.NotFoundError("Donation not found.", err)
	case errors.Is(err, receipt.ErrNotCompleted):
		return e.BadRequestError("Donation payment is not completed.", err)
	case err != nil:
		return e.InternalServerError("Unable to issue receipt.", err)
	}
	return e.JSON(http.StatusOK, out)
}
