package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
)

const serviceEC2 = "ec2"

// Instances implements instance lookup, listing and tagging on EC2.
type Instances struct {
	c *Client
}

var _ classifier.InstanceDescriber = (*Instances)(nil)

// DescribeInstance returns the metadata of one instance. Unknown and
// malformed ids map to INSTANCE_NOT_FOUND.
func (in *Instances) DescribeInstance(ctx context.Context, instanceID string) (*classifier.Instance, error) {
	var out *ec2.DescribeInstancesOutput
	err := in.c.Do(ctx, serviceEC2, "DescribeInstances", func(ctx context.Context) error {
		var err error
		out, err = in.c.apis.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewInstanceNotFound(instanceID).WithCause(err)
		}
		return nil, fmt.Errorf("describe instance %s: %w", instanceID, err)
	}

	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			if aws.ToString(i.InstanceId) != instanceID {
				continue
			}
			inst := toInstance(i)
			if inst.PlatformDetails == "" && i.ImageId != nil {
				inst.PlatformDetails = in.imagePlatform(ctx, aws.ToString(i.ImageId))
			}
			return &inst, nil
		}
	}
	return nil, apperrors.NewInstanceNotFound(instanceID)
}

// imagePlatform falls back to the AMI's platform details. Failures are
// logged and yield "", which classifies as Linux.
func (in *Instances) imagePlatform(ctx context.Context, imageID string) string {
	var out *ec2.DescribeImagesOutput
	err := in.c.Do(ctx, serviceEC2, "DescribeImages", func(ctx context.Context) error {
		var err error
		out, err = in.c.apis.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
		return err
	})
	if err != nil || len(out.Images) == 0 {
		in.c.logger.Debug("Image platform unavailable", zap.String("image_id", imageID), zap.Error(err))
		return ""
	}
	return aws.ToString(out.Images[0].PlatformDetails)
}

// ListRunning pages through running instances whose type matches one of
// the given families.
func (in *Instances) ListRunning(ctx context.Context, families []string) ([]classifier.Instance, error) {
	types := make([]string, 0, len(families))
	for _, f := range families {
		types = append(types, f+".*")
	}

	var instances []classifier.Instance
	paginator := ec2.NewDescribeInstancesPaginator(in.c.apis.EC2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-type"), Values: types},
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	})
	for paginator.HasMorePages() {
		var page *ec2.DescribeInstancesOutput
		err := in.c.Do(ctx, serviceEC2, "DescribeInstances", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list running instances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, i := range r.Instances {
				instances = append(instances, toInstance(i))
			}
		}
	}
	return instances, nil
}

// TagInstance sets one tag on an instance.
func (in *Instances) TagInstance(ctx context.Context, instanceID, key, value string) error {
	err := in.c.Do(ctx, serviceEC2, "CreateTags", func(ctx context.Context) error {
		_, err := in.c.apis.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{instanceID},
			Tags:      []ec2types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return apperrors.NewInstanceNotFound(instanceID).WithCause(err)
		}
		return fmt.Errorf("tag instance %s: %w", instanceID, err)
	}
	return nil
}

func toInstance(i ec2types.Instance) classifier.Instance {
	inst := classifier.Instance{
		ID:              aws.ToString(i.InstanceId),
		Type:            string(i.InstanceType),
		PlatformDetails: aws.ToString(i.PlatformDetails),
		Tags:            make(map[string]string, len(i.Tags)),
	}
	if i.State != nil {
		inst.State = string(i.State.Name)
	}
	for _, t := range i.Tags {
		inst.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return inst
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return strings.HasPrefix(code, "InvalidInstanceID.")
}
