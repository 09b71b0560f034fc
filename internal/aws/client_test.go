package aws

import (
	"context"
	"fmt"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type mockSTSAPI struct {
	getCallerIdentityFunc func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func (m *mockSTSAPI) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return m.getCallerIdentityFunc(ctx, params, optFns...)
}

func TestAccountID(t *testing.T) {
	client := &ServiceClient{sts: &mockSTSAPI{
		getCallerIdentityFunc: func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
			return &sts.GetCallerIdentityOutput{Account: awssdk.String("123456789012")}, nil
		},
	}}

	if got := client.AccountID(context.Background()); got != "123456789012" {
		t.Errorf("AccountID = %q, want %q", got, "123456789012")
	}
}

func TestAccountID_ErrorReturnsEmpty(t *testing.T) {
	client := &ServiceClient{sts: &mockSTSAPI{
		getCallerIdentityFunc: func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
			return nil, fmt.Errorf("no credentials")
		},
	}}

	if got := client.AccountID(context.Background()); got != "" {
		t.Errorf("AccountID = %q, want empty string on lookup failure", got)
	}
}
