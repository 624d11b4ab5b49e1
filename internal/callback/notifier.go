package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/credexam/certification-api/internal/types"
)

var tracer = otel.Tracer("github.com/credexam/certification-api/internal/callback")

// Notification reports the terminal outcome of one artifact job to the
// callback url the producer attached to the message.
type Notification struct {
	ResultID     string             `json:"result_id"`
	ArtifactType types.ArtifactType `json:"artifact_type"`
	PDFStatus    types.PDFStatus    `json:"pdf_status"`
	ArtifactPath *string            `json:"artifact_path,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, url string, notification Notification) error
}

// Ensure HTTPNotifier implements Notifier.
var _ Notifier = (*HTTPNotifier)(nil)

type HTTPNotifier struct {
	client *http.Client
}

func NewHTTPNotifier(client *http.Client) *HTTPNotifier {
	return &HTTPNotifier{client: client}
}

// Default client with retrying transport for fire and forget delivery
func NewDefaultHTTPNotifier() *HTTPNotifier {
	return &HTTPNotifier{client: retryablehttp.NewClient().StandardClient()}
}

func (n *HTTPNotifier) Notify(
	ctx context.Context,
	url string,
	notification Notification,
) error {
	ctx, span := tracer.Start(ctx, "HTTPNotifier.Notify", trace.WithAttributes(
		attribute.String("result.id", notification.ResultID),
		attribute.String("artifact.type", string(notification.ArtifactType)),
	))
	defer span.End()

	body, err := json.Marshal(notification)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal notification")
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post notification")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("callback returned status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback rejected notification")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "notified callback")
	return nil
}
