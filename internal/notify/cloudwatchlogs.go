package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// maxLogEventBytes stays under the CloudWatch Logs per-event limit of 256 KiB
// including the 26 bytes of per-event overhead.
const maxLogEventBytes = 200 * 1024

// CloudWatchLogsAPI is the subset of the CloudWatch Logs client used by CloudWatchLogsSink.
type CloudWatchLogsAPI interface {
	CreateLogStream(ctx context.Context, input *cloudwatchlogs.CreateLogStreamInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, input *cloudwatchlogs.PutLogEventsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsSink archives notifications and the job's combined log in one
// log stream per run, named after the run ID.
type CloudWatchLogsSink struct {
	client   CloudWatchLogsAPI
	logGroup string
}

// CloudWatchLogsSinkOption configures a CloudWatchLogsSink.
type CloudWatchLogsSinkOption func(*CloudWatchLogsSink)

// WithCloudWatchLogsClient sets a custom client (useful for testing).
func WithCloudWatchLogsClient(c CloudWatchLogsAPI) CloudWatchLogsSinkOption {
	return func(s *CloudWatchLogsSink) { s.client = c }
}

// NewCloudWatchLogsSink creates a new CloudWatch Logs sink.
func NewCloudWatchLogsSink(ctx context.Context, logGroup, region string, opts ...CloudWatchLogsSinkOption) (*CloudWatchLogsSink, error) {
	if logGroup == "" {
		return nil, fmt.Errorf("log group required")
	}
	s := &CloudWatchLogsSink{logGroup: logGroup}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = cloudwatchlogs.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *CloudWatchLogsSink) Name() types.NotifyType { return types.NotifyCloudWatchLogs }

// Send writes the notification JSON followed by the job log, if any.
func (s *CloudWatchLogsSink) Send(ctx context.Context, n types.Notification) error {
	stream := n.RunID
	if stream == "" {
		stream = "unassigned"
	}
	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.logGroup),
		LogStreamName: aws.String(stream),
	})
	var exists *cwltypes.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("creating log stream: %w", err)
	}

	head, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	ts := n.Timestamp.UnixMilli()
	events := []cwltypes.InputLogEvent{{Message: aws.String(string(head)), Timestamp: aws.Int64(ts)}}
	for _, chunk := range splitLog(n.Logs, maxLogEventBytes) {
		events = append(events, cwltypes.InputLogEvent{Message: aws.String(chunk), Timestamp: aws.Int64(ts)})
	}

	_, err = s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.logGroup),
		LogStreamName: aws.String(stream),
		LogEvents:     events,
	})
	if err != nil {
		return fmt.Errorf("putting log events: %w", err)
	}
	return nil
}

// splitLog cuts s into pieces of at most limit bytes, preferring line breaks.
func splitLog(s string, limit int) []string {
	s = strings.TrimRight(s, "\n")
	var out []string
	for len(s) > 0 {
		if len(s) <= limit {
			out = append(out, s)
			break
		}
		cut := strings.LastIndexByte(s[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		out = append(out, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	return out
}
