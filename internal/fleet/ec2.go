package fleet

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/timmy/textfleet/internal/config"
	"github.com/timmy/textfleet/internal/logger"
)

const roleTag = "Role"

// ec2API is the subset of the EC2 client used here.
type ec2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// EC2Controller manages instances tagged Role=<role>.
type EC2Controller struct {
	client ec2API
	cfg    config.FleetConfig
}

// NewEC2Controller creates an EC2 client from the shared AWS settings.
func NewEC2Controller(ctx context.Context, cfg config.FleetConfig, awsCfg config.AWSConfig) (*EC2Controller, error) {
	region := awsCfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if awsCfg.AccessKey != "" && awsCfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKey, awsCfg.SecretKey, ""),
		))
	}
	if awsCfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(awsCfg.Profile))
	}

	loaded, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := ec2.NewFromConfig(loaded, func(o *ec2.Options) {
		if awsCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
		}
	})
	return &EC2Controller{client: client, cfg: cfg}, nil
}

func (c *EC2Controller) Active(ctx context.Context, role string) (int, error) {
	ids, err := c.instances(ctx, role, types.InstanceStateNamePending, types.InstanceStateNameRunning)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (c *EC2Controller) Launch(ctx context.Context, role string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	userData, err := c.userData(role)
	if err != nil {
		return nil, err
	}
	imageID := c.resolveImage(ctx)
	if imageID == "" {
		return nil, fmt.Errorf("no image available to launch %s", role)
	}

	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(imageID),
		InstanceType: types.InstanceType(c.cfg.InstanceType),
		MinCount:     aws.Int32(int32(count)),
		MaxCount:     aws.Int32(int32(count)),
		UserData:     aws.String(base64.StdEncoding.EncodeToString([]byte(userData))),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags: []types.Tag{
				{Key: aws.String(roleTag), Value: aws.String(role)},
				{Key: aws.String("Name"), Value: aws.String("textfleet-" + strings.ToLower(role))},
			},
		}},
	}
	if c.cfg.KeyName != "" {
		in.KeyName = aws.String(c.cfg.KeyName)
	}
	if c.cfg.SecurityGroupID != "" {
		in.SecurityGroupIds = []string{c.cfg.SecurityGroupID}
	}
	if c.cfg.InstanceProfile != "" {
		in.IamInstanceProfile = &types.IamInstanceProfileSpecification{Name: aws.String(c.cfg.InstanceProfile)}
	}

	out, err := c.client.RunInstances(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("run instances: %w", err)
	}

	ids := make([]string, 0, len(out.Instances))
	for _, inst := range out.Instances {
		ids = append(ids, aws.ToString(inst.InstanceId))
	}
	return ids, nil
}

func (c *EC2Controller) TerminateAll(ctx context.Context, role string) (int, error) {
	ids, err := c.instances(ctx, role,
		types.InstanceStateNamePending,
		types.InstanceStateNameRunning,
		types.InstanceStateNameStopping,
		types.InstanceStateNameStopped,
	)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := c.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		return 0, fmt.Errorf("terminate %d %s instances: %w", len(ids), role, err)
	}
	return len(ids), nil
}

func (c *EC2Controller) instances(ctx context.Context, role string, states ...types.InstanceStateName) ([]string, error) {
	stateValues := make([]string, 0, len(states))
	for _, s := range states {
		stateValues = append(stateValues, string(s))
	}

	p := ec2.NewDescribeInstancesPaginator(c.client, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + roleTag), Values: []string{role}},
			{Name: aws.String("instance-state-name"), Values: stateValues},
		},
	})

	var ids []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe %s instances: %w", role, err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				ids = append(ids, aws.ToString(inst.InstanceId))
			}
		}
	}
	return ids, nil
}

// resolveImage prefers the image of a running manager so that workers run
// the same build, falling back to the configured image.
func (c *EC2Controller) resolveImage(ctx context.Context) string {
	if c.cfg.ManagerRole == "" {
		return c.cfg.ImageID
	}
	out, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + roleTag), Values: []string{c.cfg.ManagerRole}},
			{Name: aws.String("instance-state-name"), Values: []string{string(types.InstanceStateNameRunning)}},
		},
	})
	if err != nil {
		logger.CtxWarn(ctx, "Falling back to configured image: %v", err)
		return c.cfg.ImageID
	}
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			if id := aws.ToString(inst.ImageId); id != "" {
				return id
			}
		}
	}
	return c.cfg.ImageID
}

func (c *EC2Controller) userData(role string) (string, error) {
	switch role {
	case c.cfg.WorkerRole:
		return c.cfg.WorkerUserData, nil
	case c.cfg.ManagerRole:
		return c.cfg.ManagerUserData, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
}
