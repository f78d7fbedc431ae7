// Package rest exposes the xrpc surface of the feed generator.
package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/aviary-social/aviary"
	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/present/rest/presenter"
	"github.com/aviary-social/aviary/internal/usecase"
)

var tracer = otel.Tracer("rest")

type Handler struct {
	feed     *usecase.FeedUsecase
	relation *usecase.RelationUsecase
	identity domain.ServiceIdentity
}

func NewHandler(
	feed *usecase.FeedUsecase,
	relation *usecase.RelationUsecase,
	identity domain.ServiceIdentity,
) *Handler {
	return &Handler{
		feed:     feed,
		relation: relation,
		identity: identity,
	}
}

// Routes registers the public and authenticated endpoints. auth is the
// service-JWT middleware applied to requester-scoped routes.
func (h *Handler) Routes(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/", h.Index)
	e.GET("/.well-known/did.json", h.DIDDocument)
	e.GET("/.well-known/atproto-did", h.ATProtoDID)
	e.GET("/xrpc/app.bsky.feed.describeFeedGenerator", h.DescribeFeedGenerator)
	e.GET("/xrpc/app.bsky.feed.getFeedSkeleton", h.GetFeedSkeleton, auth)
	e.POST("/xrpc/com.atproto.moderation.createReport", h.CreateReport, auth)
}

func (h *Handler) Index(c echo.Context) error {
	return c.String(http.StatusOK, "aviary feed generator\n")
}

// DIDDocument serves the did:web document that binds this host to the
// service DID.
func (h *Handler) DIDDocument(c echo.Context) error {
	return presenter.OK(c, aviary.DIDDocument{
		Context: []string{"https://www.w3.org/ns/did/v1"},
		ID:      h.identity.ServiceDid,
		Service: []aviary.DIDService{
			{
				ID:              "#bsky_fg",
				Type:            "BskyFeedGenerator",
				ServiceEndpoint: h.identity.ServiceEndpoint,
			},
		},
	})
}

// ATProtoDID maps this host to the publisher account for handle
// verification.
func (h *Handler) ATProtoDID(c echo.Context) error {
	return c.String(http.StatusOK, h.identity.PublisherDid)
}

func (h *Handler) DescribeFeedGenerator(c echo.Context) error {
	return presenter.OK(c, aviary.DescribeFeedGenerator{
		DID: h.identity.ServiceDid,
		Feeds: []aviary.FeedGeneratorView{
			{URI: h.identity.FeedURI()},
		},
	})
}

// GetFeedSkeleton returns the requester's personal timeline. The feed
// entries are keyed by the requester DID, so the token's issuer decides
// which timeline is served.
func (h *Handler) GetFeedSkeleton(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Rest.Handler.GetFeedSkeleton")
	defer span.End()

	requester, ok := ctx.Value(domain.RequesterDidCtxKey).(string)
	if !ok || requester == "" {
		return presenter.AuthenticationRequired(c, "authentication required")
	}
	if aud, _ := ctx.Value(domain.RequesterAudCtxKey).(string); aud != h.identity.ServiceDid {
		return presenter.AuthenticationRequired(c, "token audience is not this service")
	}
	if lxm, _ := ctx.Value(domain.RequesterLxmCtxKey).(string); lxm != "" && lxm != aviary.LxmGetFeedSkeleton {
		return presenter.AuthenticationRequired(c, "token is bound to another method")
	}

	if feed := c.QueryParam("feed"); feed != h.identity.FeedURI() {
		return presenter.InvalidRequest(c, "unknown feed: "+feed)
	}

	limit := domain.DefaultPageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return presenter.InvalidRequest(c, "malformed limit")
		}
		limit = parsed
	}

	skeleton, err := h.feed.GetFeedSkeleton(ctx, requester, c.QueryParam("cursor"), limit)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrInvalidRequest) {
			return presenter.InvalidRequest(c, err.Error())
		}
		slog.Error("failed to build feed skeleton",
			slog.String("requester", requester),
			slog.String("error", err.Error()),
			slog.String("module", "rest"),
		)
		return presenter.InternalServerError(c)
	}

	return presenter.OK(c, skeleton)
}

// CreateReport is the subscription control channel: the report reason
// carries a relation command and the subject names the followee.
func (h *Handler) CreateReport(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Rest.Handler.CreateReport")
	defer span.End()

	requester, ok := ctx.Value(domain.RequesterDidCtxKey).(string)
	if !ok || requester == "" {
		return presenter.AuthenticationRequired(c, "authentication required")
	}
	if aud, _ := ctx.Value(domain.RequesterAudCtxKey).(string); aud != h.identity.PublisherDid {
		return presenter.AuthenticationRequired(c, "token audience is not the feed publisher")
	}
	if lxm, _ := ctx.Value(domain.RequesterLxmCtxKey).(string); lxm != "" && lxm != aviary.LxmCreateReport {
		return presenter.AuthenticationRequired(c, "token is bound to another method")
	}

	var request aviary.CreateReportRequest
	if err := c.Bind(&request); err != nil {
		return presenter.InvalidRequest(c, "malformed request body")
	}
	if request.Subject.Type != aviary.SubjectRepoRef {
		return presenter.InvalidRequest(c, "unsupported subject type: "+request.Subject.Type)
	}
	if !aviary.IsDID(request.Subject.DID) {
		return presenter.InvalidRequest(c, "subject did is invalid")
	}

	if _, err := h.relation.ApplyCommand(ctx, requester, request.Subject.DID, request.Reason); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrInvalidRequest) {
			return presenter.InvalidRequest(c, err.Error())
		}
		slog.Error("failed to apply relation command",
			slog.String("follower", requester),
			slog.String("followee", request.Subject.DID),
			slog.String("error", err.Error()),
			slog.String("module", "rest"),
		)
		return presenter.InternalServerError(c)
	}

	now := time.Now().UTC()
	return presenter.OK(c, aviary.CreateReportResponse{
		ID:         now.UnixMilli(),
		ReportedBy: requester,
		ReasonType: request.ReasonType,
		Reason:     request.Reason,
		Subject:    request.Subject,
		CreatedAt:  now.Format(time.RFC3339),
	})
}
