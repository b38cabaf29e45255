package handler

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/audit"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/signing"
)

var suppressPage = template.Must(template.New("suppress").Parse(`<html>
<head>
<style>
p { background-color: floralwhite; font-family: Cambria, Cochin, Georgia, Times, "Times New Roman", serif; }
</style>
</head>
<body>
{{if .Error}}<p>Notifications could not be suppressed for instance {{.InstanceID}}: {{.Error}}</p>
{{else}}<p>Successfully suppressed the notifications for the alarm. To enable the notifications, remove the tag {{.TagName}}={{.TagValue}} from instance <a href="{{.ConsoleURL}}">{{.InstanceID}}</a>.</p>
{{end}}</body>
</html>
`))

type suppressView struct {
	InstanceID string
	TagName    string
	TagValue   string
	ConsoleURL string
	Error      string
}

// ConsoleURL links to the instance in the EC2 console.
func ConsoleURL(region, instanceID string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/ec2/v2/home?region=%s#Instances:search=%s;sort=instanceId",
		region, region, instanceID)
}

// Suppress handles the suppression link of a notification: it tags the
// instance with the suppression tag and answers with an HTML confirmation.
// Failures are reported in the page, not as invocation errors.
func (h *Handler) Suppress(ctx context.Context, req awsevents.APIGatewayProxyRequest) (awsevents.APIGatewayProxyResponse, error) {
	instanceID := req.QueryStringParameters[signing.InstanceIDParam]
	view := suppressView{
		InstanceID: instanceID,
		TagName:    h.cfg.SuppressTagName,
		TagValue:   h.cfg.SuppressTagValue,
		ConsoleURL: ConsoleURL(h.cfg.Region, instanceID),
	}

	if err := events.Validate("suppress-request", events.SuppressRequest{InstanceID: instanceID}); err != nil {
		view.Error = "missing or malformed instance id"
		h.recordRejected(StageSuppress, err)
		return h.page(http.StatusBadRequest, view), nil
	}

	err := h.observe(ctx, StageSuppress, instanceID, func(ctx context.Context) error {
		start := time.Now()
		err := h.deps.Tagger.TagInstance(ctx, instanceID, h.cfg.SuppressTagName, h.cfg.SuppressTagValue)
		h.deps.Audit.LogMutation(ctx, audit.OpTag, audit.ResourceInstanceTag,
			h.cfg.SuppressTagName+"="+h.cfg.SuppressTagValue, instanceID, time.Since(start), err)
		return err
	})
	if err != nil {
		view.Error = "the instance could not be tagged"
		status := http.StatusInternalServerError
		if apperrors.CodeOf(err) == apperrors.CodeInstanceNotFound {
			status = http.StatusNotFound
		}
		return h.page(status, view), nil
	}

	h.logger.Info("Notifications suppressed",
		zap.String("instance_id", instanceID),
		zap.String("tag", h.cfg.SuppressTagName),
	)
	return h.page(http.StatusOK, view), nil
}

func (h *Handler) page(status int, view suppressView) awsevents.APIGatewayProxyResponse {
	var buf bytes.Buffer
	if err := suppressPage.Execute(&buf, view); err != nil {
		h.logger.Error("Suppression page not rendered", zap.Error(err))
		status = http.StatusInternalServerError
	}
	return awsevents.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
		Body:       buf.String(),
	}
}
