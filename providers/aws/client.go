package aws

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/sirupsen/logrus"
)

var (
	ErrInstanceNotFound   = errors.New("ec2 instance not found")
	ErrInstanceNotRunning = errors.New("ec2 instance not running")
	ErrNoReachableAddress = errors.New("ec2 instance has no reachable address")
)

var instanceIDPattern = regexp.MustCompile(`^i-[0-9a-f]{8,17}$`)

// HostResolver turns EC2 instance ids into connectable addresses for remote
// jobs. Anything that is not an instance id passes through unchanged.
type HostResolver struct {
	ec2Client   ec2.DescribeInstancesAPIClient
	waitTimeout time.Duration
	logger      *logrus.Logger
}

// NewClient creates a resolver using the default AWS credential chain
func NewClient(ctx context.Context, region string, logger *logrus.Logger) (*HostResolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewHostResolver(ec2.NewFromConfig(cfg), logger), nil
}

// NewHostResolver creates a resolver over an EC2 API client
func NewHostResolver(client ec2.DescribeInstancesAPIClient, logger *logrus.Logger) *HostResolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HostResolver{
		ec2Client:   client,
		waitTimeout: 3 * time.Minute,
		logger:      logger,
	}
}

// IsInstanceID reports whether host looks like an EC2 instance id
func IsInstanceID(host string) bool {
	return instanceIDPattern.MatchString(host)
}

// Resolve returns the address to dial for host. A pending instance is waited
// on until it is running.
func (r *HostResolver) Resolve(ctx context.Context, host string) (string, error) {
	if !IsInstanceID(host) {
		return host, nil
	}

	instance, err := r.describe(ctx, host)
	if err != nil {
		return "", err
	}

	state := instanceState(instance)
	if state == types.InstanceStateNamePending {
		r.logger.WithField("instance_id", host).Info("Waiting for EC2 instance to start")
		waiter := ec2.NewInstanceRunningWaiter(r.ec2Client)
		if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{host}}, r.waitTimeout); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInstanceNotRunning, host, err)
		}
		if instance, err = r.describe(ctx, host); err != nil {
			return "", err
		}
		state = instanceState(instance)
	}
	if state != types.InstanceStateNameRunning {
		return "", fmt.Errorf("%w: %s is %s", ErrInstanceNotRunning, host, state)
	}

	for _, addr := range []*string{instance.PublicDnsName, instance.PublicIpAddress, instance.PrivateIpAddress} {
		if a := aws.ToString(addr); a != "" {
			r.logger.WithFields(logrus.Fields{"instance_id": host, "address": a}).Debug("Resolved EC2 instance")
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoReachableAddress, host)
}

func (r *HostResolver) describe(ctx context.Context, id string) (*types.Instance, error) {
	out, err := r.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", id, err)
	}
	for _, reservation := range out.Reservations {
		for i := range reservation.Instances {
			if aws.ToString(reservation.Instances[i].InstanceId) == id {
				return &reservation.Instances[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
}

func instanceState(instance *types.Instance) types.InstanceStateName {
	if instance.State == nil {
		return ""
	}
	return instance.State.Name
}
