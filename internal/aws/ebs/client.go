package ebs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"k8s.io/klog/v2"
)

type EBSAPI interface {
	DescribeVolumes(ctx context.Context, params *awsec2.DescribeVolumesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeVolumesOutput, error)
	DeleteVolume(ctx context.Context, params *awsec2.DeleteVolumeInput, optFns ...func(*awsec2.Options)) (*awsec2.DeleteVolumeOutput, error)
}

type Client struct {
	api EBSAPI
}

func NewClient(api EBSAPI) *Client {
	return &Client{api: api}
}

// Volume is a candidate for deletion.
type Volume struct {
	VolumeID string
	Name     string
	SizeGiB  int
	State    string
}

// PurgeResult lists what was deleted and what was left alone.
type PurgeResult struct {
	Deleted []Volume
	Skipped []Volume
	Failed  []Volume
}

// FindTagged lists volumes carrying the given tag.
func (c *Client) FindTagged(ctx context.Context, tagKey, tagValue string) ([]Volume, error) {
	var volumes []Volume
	var nextToken *string

	for {
		out, err := c.api.DescribeVolumes(ctx, &awsec2.DescribeVolumesInput{
			Filters: []types.Filter{
				{Name: aws.String("tag:" + tagKey), Values: []string{tagValue}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeVolumes: %w", err)
		}

		for _, v := range out.Volumes {
			name := ""
			for _, tag := range v.Tags {
				if aws.ToString(tag.Key) == "Name" {
					name = aws.ToString(tag.Value)
					break
				}
			}
			volumes = append(volumes, Volume{
				VolumeID: aws.ToString(v.VolumeId),
				Name:     name,
				SizeGiB:  int(aws.ToInt32(v.Size)),
				State:    string(v.State),
			})
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return volumes, nil
}

// Purge deletes every available volume carrying the tag. Attached volumes
// are skipped with a warning, as are volumes whose delete call fails; a
// purge run never aborts halfway.
func (c *Client) Purge(ctx context.Context, tagKey, tagValue string, dryRun bool) (*PurgeResult, error) {
	volumes, err := c.FindTagged(ctx, tagKey, tagValue)
	if err != nil {
		return nil, err
	}

	result := &PurgeResult{}
	for _, v := range volumes {
		if v.State != string(types.VolumeStateAvailable) {
			klog.Warningf("skipping volume %s (%s): state %s", v.VolumeID, v.Name, v.State)
			result.Skipped = append(result.Skipped, v)
			continue
		}
		if dryRun {
			klog.V(1).Infof("dry-run: would delete %s (%s)", v.VolumeID, v.Name)
			result.Deleted = append(result.Deleted, v)
			continue
		}
		if _, err := c.api.DeleteVolume(ctx, &awsec2.DeleteVolumeInput{
			VolumeId: aws.String(v.VolumeID),
		}); err != nil {
			klog.Warningf("deleting volume %s: %v", v.VolumeID, err)
			result.Failed = append(result.Failed, v)
			continue
		}
		result.Deleted = append(result.Deleted, v)
	}
	return result, nil
}
