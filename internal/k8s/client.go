// Package k8s implements the pod maintenance operations: pattern-based
// restart and purge, copying files into running pods, and service health
// checks.
package k8s

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
)

// Client wraps a kubernetes clientset together with the rest config needed
// for exec streams.
type Client struct {
	Clientset kubernetes.Interface
	Config    *rest.Config

	// newExecutor is swapped out in tests.
	newExecutor func(config *rest.Config, method string, u *url.URL) (remotecommand.Executor, error)
}

// NewClient builds a client from a kubeconfig file. An empty path falls
// back to $KUBECONFIG and then ~/.kube/config.
func NewClient(kubeconfig string) (*Client, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig %s: %w", kubeconfig, err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("creating K8s client: %w", err)
	}

	return &Client{
		Clientset:   clientset,
		Config:      config,
		newExecutor: remotecommand.NewSPDYExecutor,
	}, nil
}
