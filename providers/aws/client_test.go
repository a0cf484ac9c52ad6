package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEC2 struct {
	instances map[string]types.Instance
	calls     int
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.calls++
	out := &ec2.DescribeInstancesOutput{}
	for _, id := range in.InstanceIds {
		if inst, ok := f.instances[id]; ok {
			out.Reservations = append(out.Reservations, types.Reservation{Instances: []types.Instance{inst}})
		}
	}
	return out, nil
}

func instance(id string, state types.InstanceStateName, dns, publicIP, privateIP string) types.Instance {
	inst := types.Instance{
		InstanceId: aws.String(id),
		State:      &types.InstanceState{Name: state},
	}
	if dns != "" {
		inst.PublicDnsName = aws.String(dns)
	}
	if publicIP != "" {
		inst.PublicIpAddress = aws.String(publicIP)
	}
	if privateIP != "" {
		inst.PrivateIpAddress = aws.String(privateIP)
	}
	return inst
}

func TestResolvePassesThroughHostnames(t *testing.T) {
	fake := &fakeEC2{}
	resolver := NewHostResolver(fake, nil)

	for _, host := range []string{"build.example.com", "10.0.0.5", "i-not-hex", "instance-1"} {
		got, err := resolver.Resolve(context.Background(), host)
		require.NoError(t, err)
		assert.Equal(t, host, got)
	}
	assert.Zero(t, fake.calls)
}

func TestResolveRunningInstance(t *testing.T) {
	fake := &fakeEC2{instances: map[string]types.Instance{
		"i-0123456789abcdef0": instance("i-0123456789abcdef0", types.InstanceStateNameRunning, "ec2-1.compute.amazonaws.com", "3.3.3.3", "10.0.0.1"),
		"i-00000000aaaaaaaa1": instance("i-00000000aaaaaaaa1", types.InstanceStateNameRunning, "", "3.3.3.4", "10.0.0.2"),
		"i-00000000aaaaaaaa2": instance("i-00000000aaaaaaaa2", types.InstanceStateNameRunning, "", "", "10.0.0.3"),
	}}
	resolver := NewHostResolver(fake, nil)
	ctx := context.Background()

	got, err := resolver.Resolve(ctx, "i-0123456789abcdef0")
	require.NoError(t, err)
	assert.Equal(t, "ec2-1.compute.amazonaws.com", got)

	got, err = resolver.Resolve(ctx, "i-00000000aaaaaaaa1")
	require.NoError(t, err)
	assert.Equal(t, "3.3.3.4", got)

	got, err = resolver.Resolve(ctx, "i-00000000aaaaaaaa2")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", got)
}

func TestResolveFailures(t *testing.T) {
	fake := &fakeEC2{instances: map[string]types.Instance{
		"i-00000000bbbbbbbb1": instance("i-00000000bbbbbbbb1", types.InstanceStateNameStopped, "ec2-2.compute.amazonaws.com", "", ""),
		"i-00000000bbbbbbbb2": instance("i-00000000bbbbbbbb2", types.InstanceStateNameRunning, "", "", ""),
	}}
	resolver := NewHostResolver(fake, nil)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "i-00000000bbbbbbbb1")
	assert.True(t, errors.Is(err, ErrInstanceNotRunning), "got %v", err)

	_, err = resolver.Resolve(ctx, "i-00000000bbbbbbbb2")
	assert.True(t, errors.Is(err, ErrNoReachableAddress), "got %v", err)

	_, err = resolver.Resolve(ctx, "i-00000000bbbbbbbb9")
	assert.True(t, errors.Is(err, ErrInstanceNotFound), "got %v", err)
}
