// Package client содержит клиент UsageGate для соседних сервисов.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/magabrotheeeer/goflexconnect/internal/grpc/server"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// CheckRequest параметры проверки лимита через UsageGate.
type CheckRequest struct {
	LimitType       models.LimitType
	ProjectID       string
	SurveyID        string
	AdditionalCount int64
}

// UsageClient обращается к UsageGate от имени пользователя с JWT.
type UsageClient struct {
	conn *grpc.ClientConn
}

// NewUsageClient создает клиент. Без опций соединение устанавливается без TLS.
func NewUsageClient(addr string, opts ...grpc.DialOption) (*UsageClient, error) {
	const op = "grpc.client.NewUsageClient"

	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &UsageClient{conn: conn}, nil
}

// Close закрывает соединение.
func (c *UsageClient) Close() error {
	return c.conn.Close()
}

// ResolvePlan возвращает план пользователя userID. Пустой userID означает владельца токена.
func (c *UsageClient) ResolvePlan(ctx context.Context, token, userID string) (models.ResolvedPlan, error) {
	const op = "grpc.client.ResolvePlan"

	req := map[string]any{}
	if userID != "" {
		req["user_id"] = userID
	}
	var res models.ResolvedPlan
	if err := c.invoke(ctx, token, server.ResolvePlanMethod, req, &res); err != nil {
		return models.ResolvedPlan{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// CheckLimit проверяет лимит владельца токена.
func (c *UsageClient) CheckLimit(ctx context.Context, token string, p CheckRequest) (models.LimitCheck, error) {
	const op = "grpc.client.CheckLimit"

	req := map[string]any{
		"limit_type":       string(p.LimitType),
		"project_id":       p.ProjectID,
		"survey_id":        p.SurveyID,
		"additional_count": float64(p.AdditionalCount),
	}
	var res models.LimitCheck
	if err := c.invoke(ctx, token, server.CheckLimitMethod, req, &res); err != nil {
		return models.LimitCheck{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (c *UsageClient) invoke(ctx context.Context, token, method string, req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	raw, err := protojson.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
