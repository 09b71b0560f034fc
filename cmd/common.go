package cmd

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	awsclient "github.com/opsctl/opsctl/internal/aws"
	"github.com/opsctl/opsctl/internal/config"
	"github.com/opsctl/opsctl/internal/k8s"
	"github.com/opsctl/opsctl/internal/store"
)

// newAWSClient resolves profile/region against the config file and builds
// the service clients.
func newAWSClient(ctx context.Context, profile, region string) (*awsclient.ServiceClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	profile, region = cfg.Merge(profile, region)
	return awsclient.NewServiceClient(ctx, profile, region)
}

// newK8sClient builds a client from the kubeconfig flag or config default.
func newK8sClient(kubeconfig string) (*k8s.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return k8s.NewClient(cfg.Kubeconfig(kubeconfig))
}

// resolveNamespace applies the flag > config > "default" precedence.
func resolveNamespace(flag string) string {
	cfg, err := config.Load()
	if err != nil {
		return "default"
	}
	return cfg.Namespace(flag)
}

// recordRun journals a mutating command. Journal failures are logged and
// never fail the command itself.
func recordRun(ctx context.Context, command, summary string, ok bool) {
	path, err := store.DefaultPath()
	if err != nil {
		klog.Warningf("run journal unavailable: %v", err)
		return
	}
	s, err := store.Open(path)
	if err != nil {
		klog.Warningf("opening run journal: %v", err)
		return
	}
	defer s.Close()
	if err := s.Record(ctx, command, summary, ok); err != nil {
		klog.Warningf("recording run: %v", err)
	}
}
