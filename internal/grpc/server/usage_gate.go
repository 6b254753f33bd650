// Package server реализует gRPC-сервер UsageGate.
//
// UsageGate позволяет соседним сервисам узнать эффективный план пользователя
// и проверить лимит до выполнения действия. Сессия передается JWT в
// метаданных authorization, бизнес-логика делегируется сервисам plan и tracking.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/plan"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

// PlanService определяет план пользователя с учетом override и фазы биллинга.
type PlanService interface {
	ResolveUserPlan(ctx context.Context, session models.Session, userID string) (models.ResolvedPlan, error)
	EffectivePlan(ctx context.Context, session models.Session) (models.PlanID, error)
}

// LimitChecker проверяет лимит плана.
type LimitChecker interface {
	CheckUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error)
}

// UsageGate реализует UsageGateServer.
type UsageGate struct {
	plans  PlanService
	limits LimitChecker
	tokens middlewarectx.TokenParser
	log    *slog.Logger
}

var _ UsageGateServer = (*UsageGate)(nil)

// NewUsageGate создает новый экземпляр UsageGate.
func NewUsageGate(plans PlanService, limits LimitChecker, tokens middlewarectx.TokenParser, logger *slog.Logger) *UsageGate {
	return &UsageGate{
		plans:  plans,
		limits: limits,
		tokens: tokens,
		log:    logger,
	}
}

// Register регистрирует UsageGate и стандартный health-сервис на gRPC-сервере.
func Register(s *grpc.Server, gate *UsageGate) *health.Server {
	RegisterUsageGateServer(s, gate)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// ResolvePlan возвращает разрешенный план. Поле user_id необязательно,
// по умолчанию берется пользователь из сессии.
func (g *UsageGate) ResolvePlan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	session, err := g.session(ctx)
	if err != nil {
		return nil, err
	}

	userID := req.GetFields()["user_id"].GetStringValue()
	if userID == "" {
		userID = session.UserID
	}
	g.log.Info("ResolvePlan request", slog.String("user_id", userID))

	res, err := g.plans.ResolveUserPlan(ctx, session, userID)
	if err != nil {
		if errors.Is(err, plan.ErrUnauthorized) {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		g.log.Error("ResolvePlan failed", slog.String("user_id", userID), sl.Err(err))
		return nil, status.Error(codes.Internal, "could not resolve plan")
	}
	return toStruct(res)
}

// CheckLimit сверяет использование владельца сессии с лимитом его эффективного плана.
func (g *UsageGate) CheckLimit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	session, err := g.session(ctx)
	if err != nil {
		return nil, err
	}

	fields := req.GetFields()
	limitType := models.LimitType(fields["limit_type"].GetStringValue())
	if !limitType.Valid() {
		return nil, status.Error(codes.InvalidArgument, "unknown limit type")
	}
	additional := int64(fields["additional_count"].GetNumberValue())
	if additional < 0 {
		return nil, status.Error(codes.InvalidArgument, "additional_count must not be negative")
	}

	planID, err := g.plans.EffectivePlan(ctx, session)
	if err != nil {
		g.log.Error("CheckLimit: plan resolution failed", slog.String("user_id", session.UserID), sl.Err(err))
		return nil, status.Error(codes.Internal, "could not resolve plan")
	}

	res, err := g.limits.CheckUsageLimit(ctx, tracking.CheckParams{
		UserID:          session.UserID,
		PlanID:          planID,
		LimitType:       limitType,
		ProjectID:       fields["project_id"].GetStringValue(),
		SurveyID:        fields["survey_id"].GetStringValue(),
		AdditionalCount: additional,
	})
	if err != nil {
		if errors.Is(err, tracking.ErrValidation) {
			return nil, status.Error(codes.InvalidArgument, validationMessage(err))
		}
		g.log.Error("CheckLimit failed", slog.String("user_id", session.UserID), sl.Err(err))
		return nil, status.Error(codes.Internal, "could not check usage limit")
	}
	return toStruct(res)
}

func (g *UsageGate) session(ctx context.Context) (models.Session, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return models.Session{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return models.Session{}, status.Error(codes.Unauthenticated, "missing authorization")
	}
	token, ok := middlewarectx.BearerToken(values[0])
	if !ok {
		return models.Session{}, status.Error(codes.Unauthenticated, "invalid authorization format")
	}
	claims, err := g.tokens.ParseToken(token)
	if err != nil {
		g.log.Warn("invalid token", sl.Err(err))
		return models.Session{}, status.Error(codes.Unauthenticated, "invalid token")
	}
	session := claims.Session()
	if session.UserID == "" {
		return models.Session{}, status.Error(codes.Unauthenticated, "invalid token")
	}
	return session, nil
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, tracking.ErrMissingProjectID):
		return "project_id is required"
	case errors.Is(err, tracking.ErrMissingSurveyID):
		return "survey_id is required"
	}
	return "invalid limit check"
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return s, nil
}
